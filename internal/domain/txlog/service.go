package txlog

import (
	"context"
	"fmt"
	"time"

	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
)

// Service appends and reads ledger entries.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Record fills id, actor and timestamp and appends e.
// It joins the caller's transaction when ctx carries one.
func (s *Service) Record(ctx context.Context, e *Entry) error {
	s.prepare(ctx, e)
	if err := e.Validate(ctx); err != nil {
		return err
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("append %s entry: %w", e.Type, err)
	}
	return nil
}

// RecordMany appends several entries in one call.
func (s *Service) RecordMany(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		s.prepare(ctx, e)
		if err := e.Validate(ctx); err != nil {
			return err
		}
	}
	if err := s.repo.AppendBatch(ctx, entries); err != nil {
		return fmt.Errorf("append %d entries: %w", len(entries), err)
	}
	return nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, entryID id.ID) (*Entry, error) {
	return s.repo.GetByID(ctx, entryID)
}

// List returns entries matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) (domain.ListResult[*Entry], error) {
	f.Page = f.Page.Normalize()
	return s.repo.List(ctx, f)
}

func (s *Service) prepare(ctx context.Context, e *Entry) {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.Actor == "" {
		e.Actor = appctx.ActorName(ctx)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
}

// --- Entry constructors ---

// NewEntry builds an entry against a batch.
func NewEntry(t Type, itemID, batchID id.ID, qty types.Quantity) *Entry {
	return &Entry{
		Type:    t,
		Qty:     qty,
		ItemID:  itemID,
		BatchID: id.Ptr(batchID),
	}
}

// ForOrder links the entry to an order line.
func (e *Entry) ForOrder(orderID, orderItemID id.ID) *Entry {
	e.OrderID = id.Ptr(orderID)
	e.OrderItemID = id.Ptr(orderItemID)
	return e
}

// ForShipment links the entry to a shipment.
func (e *Entry) ForShipment(shipmentID id.ID) *Entry {
	e.ShipmentID = id.Ptr(shipmentID)
	return e
}
