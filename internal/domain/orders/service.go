package orders

import (
	"context"
	"fmt"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/entity"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/lock"
	"stockalloc/internal/core/tx"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/pkg/logger"
	"stockalloc/pkg/numerator"
)

// StockChecker raises low-stock events after stock leaves the warehouse.
type StockChecker interface {
	CheckLowStock(ctx context.Context, itemIDs []id.ID) ([]inventory.StockLevel, error)
}

// Deps wires the order service.
type Deps struct {
	TxManager   tx.Manager
	Orders      Repository
	Allocations AllocationRepository
	Shipments   ShipmentRepository
	Items       inventory.ItemRepository
	Numerator   *numerator.Service
	Ledger      *txlog.Service
	Undo        *undo.Recorder
	Sink        *notify.Sink
	Stock       StockChecker
	Locker      lock.Locker
	LockTTL     time.Duration
	Now         func() time.Time
}

// Service manages the order lifecycle outside allocation.
type Service struct {
	txm         tx.Manager
	orders      Repository
	allocations AllocationRepository
	shipments   ShipmentRepository
	items       inventory.ItemRepository
	numerator   *numerator.Service
	ledger      *txlog.Service
	undo        *undo.Recorder
	sink        *notify.Sink
	stock       StockChecker
	locker      lock.Locker
	lockTTL     time.Duration
	now         func() time.Time
}

// NewService creates an order service.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Second
	}
	return &Service{
		txm:         d.TxManager,
		orders:      d.Orders,
		allocations: d.Allocations,
		shipments:   d.Shipments,
		items:       d.Items,
		numerator:   d.Numerator,
		ledger:      d.Ledger,
		undo:        d.Undo,
		sink:        d.Sink,
		stock:       d.Stock,
		locker:      d.Locker,
		lockTTL:     d.LockTTL,
		now:         d.Now,
	}
}

// WithOrderLock runs fn holding the order's mutex.
func (s *Service) WithOrderLock(ctx context.Context, orderID id.ID, fn func(ctx context.Context) error) error {
	return lock.Do(ctx, s.locker, lock.OrderKey(orderID.String()), s.lockTTL, fn)
}

// LineInput is one requested line of a new order.
type LineInput struct {
	ItemID id.ID
	Qty    types.Quantity
}

// Create registers a NEW order. Lines keep the order they are given in.
func (s *Service) Create(ctx context.Context, customerRef string, lines []LineInput) (*Order, error) {
	o := &Order{
		BaseEntity:  entity.NewBaseEntity(),
		CustomerRef: customerRef,
		Status:      StatusNew,
	}
	for i, l := range lines {
		o.Items = append(o.Items, newLine(o.ID, l, i+1))
	}
	if err := o.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, it := range o.Items {
			item, err := s.items.GetByID(ctx, it.ItemID)
			if err != nil {
				return err
			}
			it.SKU = item.SKU
		}
		no, err := s.numerator.Next(ctx, "ORD", s.now())
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		o.OrderNo = no
		return s.orders.Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "order created", "order_id", o.ID, "order_no", o.OrderNo, "lines", len(o.Items))
	return o, nil
}

// AddLine appends a line to a NEW order.
func (s *Service) AddLine(ctx context.Context, orderID id.ID, in LineInput) (*OrderItem, error) {
	var line *OrderItem
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusNew {
			return apperror.NewInvalidState("order", o.ID, string(o.Status))
		}
		item, err := s.items.GetByID(ctx, in.ItemID)
		if err != nil {
			return err
		}
		line = newLine(o.ID, in, len(o.Items)+1)
		line.SKU = item.SKU
		o.Items = append(o.Items, line)
		if err := o.Validate(ctx); err != nil {
			return err
		}
		return s.orders.AddLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "order line added", "order_id", orderID, "item_id", in.ItemID, "qty", in.Qty)
	return line, nil
}

func newLine(orderID id.ID, l LineInput, lineNo int) *OrderItem {
	return &OrderItem{
		BaseEntity:   entity.NewBaseEntity(),
		OrderID:      orderID,
		ItemID:       l.ItemID,
		LineNo:       lineNo,
		QtyRequested: l.Qty,
	}
}

// Get returns an order with its lines.
func (s *Service) Get(ctx context.Context, orderID id.ID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if apperror.IsNotFound(err) {
		return nil, apperror.NewOrderNotFound(orderID)
	}
	return o, err
}

// List lists orders.
func (s *Service) List(ctx context.Context, f Filter) (domain.ListResult[*Order], error) {
	f.Page = f.Page.Normalize()
	return s.orders.List(ctx, f)
}

// Allocations returns the order's current allocations.
func (s *Service) Allocations(ctx context.Context, orderID id.ID) ([]*Allocation, error) {
	return s.allocations.ListByOrder(ctx, orderID)
}

// Shipments returns the order's shipments.
func (s *Service) Shipments(ctx context.Context, orderID id.ID) ([]*Shipment, error) {
	return s.shipments.ListByOrder(ctx, orderID)
}

// Cancel moves a NEW order without allocations to CANCELLED.
func (s *Service) Cancel(ctx context.Context, orderID id.ID) (*Order, error) {
	var out *Order
	err := s.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status != StatusNew {
				return apperror.NewInvalidState("order", o.ID, string(o.Status))
			}
			allocs, err := s.allocations.ListByOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			if len(allocs) > 0 {
				return apperror.NewInvalidState("order", o.ID, string(o.Status)).
					WithDetail("allocations", len(allocs)).
					WithDetail("hint", "deallocate before cancelling")
			}
			if err := s.orders.SetStatus(ctx, o.ID, StatusCancelled); err != nil {
				return err
			}
			o.Status = StatusCancelled
			out = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "order cancelled", "order_id", orderID)
	return out, nil
}

// Advance moves an order one step along ALLOCATED -> PICKED -> PACKED or
// SHIPPED -> DELIVERED.
func (s *Service) Advance(ctx context.Context, orderID id.ID, next Status) (*Order, error) {
	var out *Order
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanAdvanceTo(next) {
			return apperror.NewInvalidState("order", o.ID, string(o.Status)).
				WithDetail("requested_status", string(next))
		}
		if err := s.orders.SetStatus(ctx, o.ID, next); err != nil {
			return err
		}
		o.Status = next
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "order advanced", "order_id", orderID, "status", next)
	return out, nil
}
