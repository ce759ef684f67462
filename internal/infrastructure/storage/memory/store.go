// Package memory is an in-process implementation of every repository
// contract and of tx.Manager. It backs the "memory" storage driver and the
// domain tests.
//
// A transaction holds the store-wide mutex for its whole duration, which
// gives the same exclusion as row locks at a coarser grain. Rollback restores
// a snapshot taken when the transaction began.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"stockalloc/internal/core/id"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/returns"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

// Store holds all state.
type Store struct {
	mu sync.Mutex
	d  data
}

type data struct {
	items       map[id.ID]inventory.Item
	batches     map[id.ID]inventory.Batch
	orders      map[id.ID]orders.Order
	lines       map[id.ID]orders.OrderItem
	allocations map[id.ID]orders.Allocation
	shipments   map[id.ID]orders.Shipment
	returns     map[id.ID]returns.Return
	entries     []txlog.Entry
	entryIndex  map[id.ID]int
	undoStack   []undo.Record
	redoStack   []undo.Record
	sequences   map[string]int64
	notes       []notify.Notification
	events      []notify.Event
}

// New creates an empty store.
func New() *Store {
	return &Store{d: data{
		items:       make(map[id.ID]inventory.Item),
		batches:     make(map[id.ID]inventory.Batch),
		orders:      make(map[id.ID]orders.Order),
		lines:       make(map[id.ID]orders.OrderItem),
		allocations: make(map[id.ID]orders.Allocation),
		shipments:   make(map[id.ID]orders.Shipment),
		returns:     make(map[id.ID]returns.Return),
		entryIndex:  make(map[id.ID]int),
		sequences:   make(map[string]int64),
	}}
}

// snapshot copies every collection. Entities are stored by value, so a
// shallow copy of each map is enough.
func (d *data) snapshot() data {
	return data{
		items:       maps.Clone(d.items),
		batches:     maps.Clone(d.batches),
		orders:      maps.Clone(d.orders),
		lines:       maps.Clone(d.lines),
		allocations: maps.Clone(d.allocations),
		shipments:   maps.Clone(d.shipments),
		returns:     maps.Clone(d.returns),
		entries:     slices.Clone(d.entries),
		entryIndex:  maps.Clone(d.entryIndex),
		undoStack:   slices.Clone(d.undoStack),
		redoStack:   slices.Clone(d.redoStack),
		sequences:   maps.Clone(d.sequences),
		notes:       slices.Clone(d.notes),
		events:      slices.Clone(d.events),
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// RunInTransaction implements tx.Manager. Nested calls join the outer
// transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.d.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.d = saved
			panic(p)
		}
		if err != nil {
			s.d = saved
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// ReadOnly implements tx.ReadOnlyManager.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// view runs fn against the data, taking the mutex unless ctx already holds it.
func (s *Store) view(ctx context.Context, fn func(d *data) error) error {
	if s.inTx(ctx) {
		return fn(&s.d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.d)
}

// paginate slices a fully filtered and sorted result.
func paginate[T any](all []T, p domain.Page) domain.ListResult[T] {
	p = p.Normalize()
	total := int64(len(all))
	if p.Offset >= len(all) {
		return domain.NewListResult[T](nil, total, p)
	}
	end := min(p.Offset+p.Limit, len(all))
	return domain.NewListResult(all[p.Offset:end], total, p)
}

func ptr[T any](v T) *T { return &v }

// Repositories exposes every repository backed by s.
type Repositories struct {
	Items         *ItemRepo
	Batches       *BatchRepo
	Orders        *OrderRepo
	Allocations   *AllocationRepo
	Shipments     *ShipmentRepo
	Returns       *ReturnRepo
	Entries       *EntryRepo
	UndoStack     *StackRepo
	RedoStack     *StackRepo
	Sequences     *SequenceRepo
	Notifications *NotificationRepo
	Events        *EventRecorder
}

// Repositories returns the repository set.
func (s *Store) Repositories() Repositories {
	return Repositories{
		Items:         &ItemRepo{s: s},
		Batches:       &BatchRepo{s: s},
		Orders:        &OrderRepo{s: s},
		Allocations:   &AllocationRepo{s: s},
		Shipments:     &ShipmentRepo{s: s},
		Returns:       &ReturnRepo{s: s},
		Entries:       &EntryRepo{s: s},
		UndoStack:     &StackRepo{s: s, redo: false},
		RedoStack:     &StackRepo{s: s, redo: true},
		Sequences:     &SequenceRepo{s: s},
		Notifications: &NotificationRepo{s: s},
		Events:        &EventRecorder{s: s},
	}
}
