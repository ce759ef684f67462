package dto

import (
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
)

// DateLayout is the wire format of expiry dates.
const DateLayout = "2006-01-02"

// --- Items ---

type CreateItemRequest struct {
	SKU              string         `json:"sku" binding:"required,max=64"`
	Name             string         `json:"name" binding:"required,max=255"`
	Description      string         `json:"description"`
	ReorderThreshold types.Quantity `json:"reorderThreshold"`
}

type ItemListQuery struct {
	Search string `form:"search"`
	PageQuery
}

func (q ItemListQuery) ToFilter() inventory.ItemFilter {
	return inventory.ItemFilter{Search: q.Search, Page: q.Page()}
}

// --- Batches ---

// ReceiveBatchRequest receives one lot into stock.
type ReceiveBatchRequest struct {
	ItemID     string         `json:"itemId" binding:"required,uuid"`
	LotNo      string         `json:"lotNo" binding:"required,max=64"`
	Qty        types.Quantity `json:"qty" binding:"required"`
	ExpiryDate string         `json:"expiryDate" binding:"omitempty,datetime=2006-01-02"`
}

func (r *ReceiveBatchRequest) ToInput() (inventory.ReceiveInput, error) {
	itemID, err := id.Parse(r.ItemID)
	if err != nil {
		return inventory.ReceiveInput{}, apperror.NewValidation("invalid itemId")
	}
	in := inventory.ReceiveInput{ItemID: itemID, LotNo: r.LotNo, Qty: r.Qty}
	if r.ExpiryDate != "" {
		exp, err := time.Parse(DateLayout, r.ExpiryDate)
		if err != nil {
			return inventory.ReceiveInput{}, apperror.NewValidation("invalid expiryDate").WithDetail("layout", DateLayout)
		}
		in.Expiry = &exp
	}
	return in, nil
}

type BatchListQuery struct {
	ItemID   string `form:"itemId" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=AVAILABLE RESERVED HOLD EXPIRED QUARANTINE"`
	LotNo    string `form:"lotNo"`
	Eligible bool   `form:"eligible"`
	PageQuery
}

func (q BatchListQuery) ToFilter() (inventory.BatchFilter, error) {
	f := inventory.BatchFilter{LotNo: q.LotNo, Eligible: q.Eligible, Page: q.Page()}
	itemID, err := parseOptionalID(q.ItemID)
	if err != nil {
		return f, apperror.NewValidation("invalid itemId")
	}
	f.ItemID = itemID
	if q.Status != "" {
		s := inventory.BatchStatus(q.Status)
		f.Status = &s
	}
	return f, nil
}

// QtyRequest carries the quantity of a manual reserve or release.
type QtyRequest struct {
	Qty types.Quantity `json:"qty" binding:"required"`
}

// QtyResponse reports the batch quantity after a manual reserve or release.
type QtyResponse struct {
	BatchID      string         `json:"batchId"`
	AvailableQty types.Quantity `json:"availableQty"`
}

type BatchStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=AVAILABLE RESERVED HOLD QUARANTINE"`
}

// BatchResponse is a batch with its distance to expiry.
type BatchResponse struct {
	*inventory.Batch
	DaysToExpiry *int `json:"daysToExpiry,omitempty"`
}

func FromBatch(b *inventory.Batch, now time.Time) BatchResponse {
	resp := BatchResponse{Batch: b}
	if b.ExpiryDate != nil {
		d := b.DaysToExpiry(now)
		resp.DaysToExpiry = &d
	}
	return resp
}

func FromBatches(bs []*inventory.Batch, now time.Time) []BatchResponse {
	out := make([]BatchResponse, len(bs))
	for i, b := range bs {
		out[i] = FromBatch(b, now)
	}
	return out
}
