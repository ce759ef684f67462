package dto

import (
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/orders"
)

type OrderLineRequest struct {
	ItemID string         `json:"itemId" binding:"required,uuid"`
	Qty    types.Quantity `json:"qty" binding:"required"`
}

type CreateOrderRequest struct {
	CustomerRef string             `json:"customerRef" binding:"required,max=128"`
	Lines       []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

func (r *CreateOrderRequest) ToLines() ([]orders.LineInput, error) {
	lines := make([]orders.LineInput, len(r.Lines))
	for i, l := range r.Lines {
		itemID, err := id.Parse(l.ItemID)
		if err != nil {
			return nil, apperror.NewValidation("invalid itemId").WithDetail("line", i+1)
		}
		lines[i] = orders.LineInput{ItemID: itemID, Qty: l.Qty}
	}
	return lines, nil
}

type OrderListQuery struct {
	Status      string `form:"status" binding:"omitempty,oneof=NEW ALLOCATED PICKED PACKED SHIPPED DELIVERED CANCELLED"`
	CustomerRef string `form:"customerRef"`
	PageQuery
}

func (q OrderListQuery) ToFilter() orders.Filter {
	f := orders.Filter{CustomerRef: q.CustomerRef, Page: q.Page()}
	if q.Status != "" {
		s := orders.Status(q.Status)
		f.Status = &s
	}
	return f
}

// OrderResponse is an order with its allocations and shipments.
type OrderResponse struct {
	*orders.Order
	Allocations []*orders.Allocation `json:"allocations"`
	Shipments   []*orders.Shipment   `json:"shipments"`
}

type ShipRequest struct {
	Carrier string `json:"carrier" binding:"max=64"`
	Notes   string `json:"notes" binding:"max=1024"`
}

func (r *ShipRequest) ToInput() orders.ShipInput {
	return orders.ShipInput{Carrier: r.Carrier, Notes: r.Notes}
}

type OrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PICKED PACKED DELIVERED"`
}

type AllocatePendingRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=500"`
}
