package orders

import (
	"context"

	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
)

// Filter narrows List.
type Filter struct {
	Status      *Status
	CustomerRef string
	domain.Page
}

// Repository persists orders and their lines.
type Repository interface {
	// Create inserts the order together with its lines.
	Create(ctx context.Context, o *Order) error

	// GetByID returns the order with lines ordered by line number.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)

	// GetForUpdate is GetByID holding the order row lock. Requires a transaction.
	GetForUpdate(ctx context.Context, orderID id.ID) (*Order, error)

	// List returns orders newest first, without lines.
	List(ctx context.Context, f Filter) (domain.ListResult[*Order], error)

	// ListIDsByStatus returns ids of orders in status, oldest first.
	ListIDsByStatus(ctx context.Context, statuses []Status, limit int) ([]id.ID, error)

	// ListIDsAfter returns up to limit ids of orders in status whose id sorts
	// after the given one, in id order. Ids are time ordered, so a nil after
	// starts at the oldest order.
	ListIDsAfter(ctx context.Context, status Status, after id.ID, limit int) ([]id.ID, error)

	SetStatus(ctx context.Context, orderID id.ID, status Status) error

	// AddLine appends a line to an existing order.
	AddLine(ctx context.Context, line *OrderItem) error

	GetItem(ctx context.Context, orderItemID id.ID) (*OrderItem, error)

	// AddAllocated changes qty_allocated by delta. The result must stay within
	// [0, qty_requested] or the call fails with a validation error.
	AddAllocated(ctx context.Context, orderItemID id.ID, delta types.Quantity) error

	// SetAllocated overwrites qty_allocated.
	SetAllocated(ctx context.Context, orderItemID id.ID, qty types.Quantity) error

	// AddShipped changes qty_shipped by delta.
	AddShipped(ctx context.Context, orderItemID id.ID, delta types.Quantity) error
}

// AllocationRepository persists allocations.
type AllocationRepository interface {
	Create(ctx context.Context, a *Allocation) error
	GetByID(ctx context.Context, allocationID id.ID) (*Allocation, error)

	// ListByOrder returns the order's allocations in creation order.
	ListByOrder(ctx context.Context, orderID id.ID) ([]*Allocation, error)

	Delete(ctx context.Context, allocationID id.ID) error

	CountByBatch(ctx context.Context, batchID id.ID) (int, error)

	// SumByOrderItem totals allocation quantities per line of an order.
	SumByOrderItem(ctx context.Context, orderID id.ID) (map[id.ID]types.Quantity, error)
}

// ShipmentRepository persists shipments.
type ShipmentRepository interface {
	Create(ctx context.Context, s *Shipment) error
	GetByID(ctx context.Context, shipmentID id.ID) (*Shipment, error)
	ListByOrder(ctx context.Context, orderID id.ID) ([]*Shipment, error)
	Delete(ctx context.Context, shipmentID id.ID) error
}
