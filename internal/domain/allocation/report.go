// Package allocation drives FEFO allocation of whole orders against the
// stock ledger.
package allocation

import (
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/orders"
)

// LineStatus is the per-line outcome of one AllocateOrder call.
type LineStatus string

const (
	LineFullyAllocated     LineStatus = "fully_allocated"
	LinePartiallyAllocated LineStatus = "partially_allocated"
	LineAllocationFailed   LineStatus = "allocation_failed"
)

// Outcome summarizes a whole order.
type Outcome string

const (
	OutcomeFull    Outcome = "full"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Reasons attached to failed or short lines.
const (
	ReasonInsufficientStock = "insufficient_stock"
	ReasonNoCandidates      = "no_eligible_batches"
	ReasonRaceLost          = "stock_taken_concurrently"
)

// BatchDraw is stock taken from one batch for one line.
type BatchDraw struct {
	AllocationID id.ID          `json:"allocationId"`
	BatchID      id.ID          `json:"batchId"`
	BatchLot     string         `json:"batchLot"`
	Qty          types.Quantity `json:"qty"`
}

// LineReport is the outcome of one order line.
type LineReport struct {
	OrderItemID  id.ID          `json:"orderItemId"`
	ItemID       id.ID          `json:"itemId"`
	ItemSKU      string         `json:"itemSku"`
	Status       LineStatus     `json:"status"`
	QtyRequested types.Quantity `json:"qtyRequested"`
	QtyAllocated types.Quantity `json:"qtyAllocated"`
	QtyRemaining types.Quantity `json:"qtyRemaining"`
	Reason       string         `json:"reason,omitempty"`
	Allocations  []BatchDraw    `json:"allocations"`
}

// Report is returned by AllocateOrder.
type Report struct {
	OrderID id.ID         `json:"orderId"`
	OrderNo string        `json:"orderNo"`
	Status  orders.Status `json:"status"`
	Outcome Outcome       `json:"outcome"`
	Lines   []LineReport  `json:"lines"`
}

// counts returns how many lines ended in each status.
func (r *Report) counts() (full, failed int) {
	for _, l := range r.Lines {
		switch l.Status {
		case LineFullyAllocated:
			full++
		case LineAllocationFailed:
			failed++
		}
	}
	return full, failed
}

// ReleasedAllocation is one allocation returned to stock.
type ReleasedAllocation struct {
	AllocationID id.ID          `json:"allocationId"`
	OrderItemID  id.ID          `json:"orderItemId"`
	BatchID      id.ID          `json:"batchId"`
	BatchLot     string         `json:"batchLot"`
	Qty          types.Quantity `json:"qty"`
}

// ReleaseReport is returned by DeallocateOrder.
type ReleaseReport struct {
	OrderID  id.ID                `json:"orderId"`
	OrderNo  string               `json:"orderNo"`
	Status   orders.Status        `json:"status"`
	Released []ReleasedAllocation `json:"released"`
	TotalQty types.Quantity       `json:"totalQty"`
}

// PendingResult is one order processed by AllocatePending.
type PendingResult struct {
	OrderID id.ID   `json:"orderId"`
	Report  *Report `json:"report,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// PendingReport summarizes AllocatePending.
type PendingReport struct {
	Processed int             `json:"processed"`
	Allocated int             `json:"allocated"`
	Partial   int             `json:"partial"`
	Failed    int             `json:"failed"`
	Results   []PendingResult `json:"results"`
}

// LineFix is one corrected qty_allocated.
type LineFix struct {
	OrderItemID id.ID          `json:"orderItemId"`
	Was         types.Quantity `json:"was"`
	Now         types.Quantity `json:"now"`
}

// ReconcileReport is returned by Reconcile.
type ReconcileReport struct {
	OrderID   id.ID         `json:"orderId"`
	Fixed     []LineFix     `json:"fixed"`
	StatusWas orders.Status `json:"statusWas"`
	StatusNow orders.Status `json:"statusNow"`
}
