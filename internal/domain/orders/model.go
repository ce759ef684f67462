// Package orders holds customer orders, their lines, the allocations that
// reserve stock for those lines, and shipments.
package orders

import (
	"context"
	"strings"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/entity"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
)

// Status is the order workflow state.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusAllocated Status = "ALLOCATED"
	StatusPicked    Status = "PICKED"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAllocated, StatusPicked, StatusPacked, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// workflow lists the downstream steps Advance may take.
var workflow = map[Status]Status{
	StatusAllocated: StatusPicked,
	StatusPicked:    StatusPacked,
	StatusShipped:   StatusDelivered,
}

// CanAdvanceTo reports whether next is the workflow step after s.
func (s Status) CanAdvanceTo(next Status) bool {
	return workflow[s] == next
}

// Shippable reports whether an order in s can be shipped.
func (s Status) Shippable() bool {
	return s == StatusAllocated || s == StatusPicked || s == StatusPacked
}

// HoldsStock reports whether allocations may exist in s.
func (s Status) HoldsStock() bool {
	return s == StatusNew || s.Shippable()
}

// Order is a customer order.
type Order struct {
	entity.BaseEntity
	OrderNo     string       `db:"order_no" json:"orderNo"`
	CustomerRef string       `db:"customer_ref" json:"customerRef"`
	Status      Status       `db:"status" json:"status"`
	Items       []*OrderItem `db:"-" json:"items"`
}

// Validate checks order invariants.
func (o *Order) Validate(ctx context.Context) error {
	if strings.TrimSpace(o.CustomerRef) == "" {
		return apperror.NewValidation("customer_ref is required")
	}
	seen := make(map[id.ID]struct{}, len(o.Items))
	for _, it := range o.Items {
		if err := it.Validate(ctx); err != nil {
			return err
		}
		if _, dup := seen[it.ItemID]; dup {
			return apperror.NewDuplicate("order line", "item_id", it.ItemID.String())
		}
		seen[it.ItemID] = struct{}{}
	}
	return nil
}

// Item returns the line with the given id, or nil.
func (o *Order) Item(orderItemID id.ID) *OrderItem {
	for _, it := range o.Items {
		if it.ID == orderItemID {
			return it
		}
	}
	return nil
}

// FullyAllocated reports whether every line is covered.
func (o *Order) FullyAllocated() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if it.Remaining().IsPositive() {
			return false
		}
	}
	return true
}

// OrderItem is one requested (item, quantity) line.
type OrderItem struct {
	entity.BaseEntity
	OrderID      id.ID          `db:"order_id" json:"orderId"`
	ItemID       id.ID          `db:"item_id" json:"itemId"`
	LineNo       int            `db:"line_no" json:"lineNo"`
	QtyRequested types.Quantity `db:"qty_requested" json:"qtyRequested"`
	QtyAllocated types.Quantity `db:"qty_allocated" json:"qtyAllocated"`
	QtyShipped   types.Quantity `db:"qty_shipped" json:"qtyShipped"`

	// SKU is joined from items on read.
	SKU string `db:"sku" json:"sku,omitempty"`
}

// Validate checks line invariants.
func (it *OrderItem) Validate(_ context.Context) error {
	if id.IsNil(it.ItemID) {
		return apperror.NewValidation("line item_id is required")
	}
	if !it.QtyRequested.IsPositive() {
		return apperror.NewValidation("requested quantity must be positive").WithDetail("item_id", it.ItemID)
	}
	if it.QtyAllocated.IsNegative() || it.QtyAllocated > it.QtyRequested {
		return apperror.NewValidation("allocated quantity must be within [0, requested]").WithDetail("item_id", it.ItemID)
	}
	return nil
}

// Remaining is the quantity still to allocate.
func (it *OrderItem) Remaining() types.Quantity {
	return it.QtyRequested - it.QtyAllocated
}

// Allocation reserves part of one batch for one order line.
type Allocation struct {
	ID          id.ID          `db:"id" json:"id"`
	OrderID     id.ID          `db:"order_id" json:"orderId"`
	OrderItemID id.ID          `db:"order_item_id" json:"orderItemId"`
	BatchID     id.ID          `db:"batch_id" json:"batchId"`
	Qty         types.Quantity `db:"qty_allocated" json:"qtyAllocated"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`

	// LotNo is joined from batches on read.
	LotNo string `db:"lot_no" json:"lotNo,omitempty"`
}

// NewAllocation creates an allocation with a fresh id.
func NewAllocation(orderID, orderItemID, batchID id.ID, qty types.Quantity) *Allocation {
	return &Allocation{
		ID:          id.New(),
		OrderID:     orderID,
		OrderItemID: orderItemID,
		BatchID:     batchID,
		Qty:         qty,
		CreatedAt:   time.Now().UTC(),
	}
}

// Shipment records goods leaving the warehouse for one order.
type Shipment struct {
	ID         id.ID     `db:"id" json:"id"`
	ShipmentNo string    `db:"shipment_no" json:"shipmentNo"`
	OrderID    id.ID     `db:"order_id" json:"orderId"`
	Carrier    string    `db:"carrier" json:"carrier,omitempty"`
	TrackingNo string    `db:"tracking_no" json:"trackingNo"`
	Notes      string    `db:"notes" json:"notes,omitempty"`
	Actor      string    `db:"actor" json:"actor"`
	ShippedAt  time.Time `db:"shipped_at" json:"shippedAt"`
}
