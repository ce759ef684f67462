// Package app assembles the domain services over a chosen storage backend.
// cmd/server, cmd/worker and cmd/seed share it, and so do the service tests.
package app

import (
	"time"

	"stockalloc/internal/core/lock"
	"stockalloc/internal/core/tx"
	"stockalloc/internal/domain/allocation"
	"stockalloc/internal/domain/expiry"
	"stockalloc/internal/domain/fefo"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/ledger"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/returns"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/internal/infrastructure/storage/memory"
	"stockalloc/pkg/numerator"
)

// Repositories is the storage surface the services need.
type Repositories struct {
	Items         inventory.ItemRepository
	Batches       inventory.BatchRepository
	Orders        orders.Repository
	Allocations   orders.AllocationRepository
	Shipments     orders.ShipmentRepository
	Returns       returns.Repository
	Entries       txlog.Repository
	UndoStack     undo.Stack
	RedoStack     undo.Stack
	Sequences     numerator.SequenceStore
	Notifications notify.Repository
}

// Options configures New.
type Options struct {
	TxManager tx.Manager
	Repos     Repositories

	// Publisher receives integration events. Nil drops them.
	Publisher notify.Publisher

	// Locker guards orders and the undo history. Nil disables locking.
	Locker  lock.Locker
	LockTTL time.Duration

	Rule              *fefo.Rule
	AllowPartialLines bool
	NearExpiryDays    int

	// Now overrides the clock used for FEFO eligibility and numbering.
	Now func() time.Time
}

// Services is the assembled domain layer.
type Services struct {
	Inventory     *inventory.Service
	Orders        *orders.Service
	Allocation    *allocation.Service
	Returns       *returns.Service
	Ledger        *ledger.Service
	TxLog         *txlog.Service
	Undo          *undo.Coordinator
	Expiry        *expiry.Scanner
	Notifications *notify.Service
	Selector      *fefo.Selector
}

// New wires every service and registers the undo handlers.
func New(o Options) *Services {
	if o.Now == nil {
		o.Now = time.Now
	}
	r := o.Repos

	notes := notify.NewService(r.Notifications)
	sink := notify.NewSink(notes, o.Publisher)
	log := txlog.NewService(r.Entries)
	recorder := undo.NewRecorder(r.UndoStack)
	numbers := numerator.New(r.Sequences)
	stock := ledger.NewService(o.TxManager, r.Batches, log)

	selectorOpts := []fefo.Option{fefo.WithClock(o.Now)}
	if o.Rule != nil {
		selectorOpts = append(selectorOpts, fefo.WithRule(o.Rule))
	}
	selector := fefo.NewSelector(r.Batches, selectorOpts...)

	inv := inventory.NewService(inventory.Deps{
		TxManager:   o.TxManager,
		Items:       r.Items,
		Batches:     r.Batches,
		Allocations: r.Allocations,
		Ledger:      log,
		Undo:        recorder,
		Sink:        sink,
	})
	ord := orders.NewService(orders.Deps{
		TxManager:   o.TxManager,
		Orders:      r.Orders,
		Allocations: r.Allocations,
		Shipments:   r.Shipments,
		Items:       r.Items,
		Numerator:   numbers,
		Ledger:      log,
		Undo:        recorder,
		Sink:        sink,
		Stock:       inv,
		Locker:      o.Locker,
		LockTTL:     o.LockTTL,
		Now:         o.Now,
	})
	alloc := allocation.NewService(allocation.Deps{
		TxManager:         o.TxManager,
		Orders:            r.Orders,
		Allocations:       r.Allocations,
		Workflow:          ord,
		Items:             r.Items,
		Selector:          selector,
		Stock:             stock,
		Log:               log,
		Undo:              recorder,
		Sink:              sink,
		Locker:            o.Locker,
		LockTTL:           o.LockTTL,
		AllowPartialLines: o.AllowPartialLines,
	})
	ret := returns.NewService(returns.Deps{
		TxManager: o.TxManager,
		Returns:   r.Returns,
		Orders:    r.Orders,
		Log:       log,
		Stock:     stock,
		Numerator: numbers,
		Undo:      recorder,
		Sink:      sink,
		Now:       o.Now,
	})

	coord := undo.NewCoordinator(o.TxManager, r.UndoStack, r.RedoStack, o.Locker, o.LockTTL)
	coord.Register(undo.OpAllocation, allocation.NewHandler(alloc))
	coord.Register(undo.OpReceive, inventory.NewReceiveHandler(inv))
	coord.Register(undo.OpShip, orders.NewShipHandler(ord))
	coord.Register(undo.OpRestock, returns.NewRestockHandler(ret))

	return &Services{
		Inventory:     inv,
		Orders:        ord,
		Allocation:    alloc,
		Returns:       ret,
		Ledger:        stock,
		TxLog:         log,
		Undo:          coord,
		Expiry:        expiry.NewScanner(o.TxManager, r.Batches, sink, o.NearExpiryDays),
		Notifications: notes,
		Selector:      selector,
	}
}

// MemoryRepositories adapts a memory store to Repositories.
func MemoryRepositories(st *memory.Store) Repositories {
	m := st.Repositories()
	return Repositories{
		Items:         m.Items,
		Batches:       m.Batches,
		Orders:        m.Orders,
		Allocations:   m.Allocations,
		Shipments:     m.Shipments,
		Returns:       m.Returns,
		Entries:       m.Entries,
		UndoStack:     m.UndoStack,
		RedoStack:     m.RedoStack,
		Sequences:     m.Sequences,
		Notifications: m.Notifications,
	}
}
