// Package inventory holds the item catalog and the stock batches received
// against it.
package inventory

import (
	"context"
	"strings"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/entity"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
)

// Item is a stocked product identified by SKU.
type Item struct {
	entity.BaseEntity
	SKU              string         `db:"sku" json:"sku"`
	Name             string         `db:"name" json:"name"`
	Description      string         `db:"description" json:"description,omitempty"`
	ReorderThreshold types.Quantity `db:"reorder_threshold" json:"reorderThreshold"`
}

// NewItem creates an item with a fresh id.
func NewItem(sku, name string, reorderThreshold types.Quantity) *Item {
	return &Item{
		BaseEntity:       entity.NewBaseEntity(),
		SKU:              strings.TrimSpace(sku),
		Name:             strings.TrimSpace(name),
		ReorderThreshold: reorderThreshold,
	}
}

// Validate checks item invariants.
func (i *Item) Validate(_ context.Context) error {
	if i.SKU == "" {
		return apperror.NewValidation("sku is required")
	}
	if i.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("sku", i.SKU)
	}
	if i.ReorderThreshold.IsNegative() {
		return apperror.NewValidation("reorder threshold cannot be negative").WithDetail("sku", i.SKU)
	}
	return nil
}

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchAvailable  BatchStatus = "AVAILABLE"
	BatchReserved   BatchStatus = "RESERVED"
	BatchHold       BatchStatus = "HOLD"
	BatchExpired    BatchStatus = "EXPIRED"
	BatchQuarantine BatchStatus = "QUARANTINE"
)

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchAvailable, BatchReserved, BatchHold, BatchExpired, BatchQuarantine:
		return true
	}
	return false
}

// CanTransitionTo reports whether a manual status change is allowed.
// EXPIRED is terminal and only the expiry scan moves a batch into it.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	if s == BatchExpired || next == BatchExpired || !next.Valid() {
		return false
	}
	return s != next
}

// Batch is one received lot of an item.
type Batch struct {
	entity.BaseEntity
	ItemID       id.ID          `db:"item_id" json:"itemId"`
	LotNo        string         `db:"lot_no" json:"lotNo"`
	ReceivedQty  types.Quantity `db:"received_qty" json:"receivedQty"`
	AvailableQty types.Quantity `db:"available_qty" json:"availableQty"`
	ExpiryDate   *time.Time     `db:"expiry_date" json:"expiryDate,omitempty"`
	Status       BatchStatus    `db:"status" json:"status"`
}

// NewBatch creates an AVAILABLE batch with all received quantity available.
func NewBatch(itemID id.ID, lotNo string, qty types.Quantity, expiry *time.Time) *Batch {
	b := &Batch{
		BaseEntity:   entity.NewBaseEntity(),
		ItemID:       itemID,
		LotNo:        strings.TrimSpace(lotNo),
		ReceivedQty:  qty,
		AvailableQty: qty,
		Status:       BatchAvailable,
	}
	if expiry != nil {
		d := DateOf(*expiry)
		b.ExpiryDate = &d
	}
	return b
}

// Validate checks batch invariants.
func (b *Batch) Validate(_ context.Context) error {
	if id.IsNil(b.ItemID) {
		return apperror.NewValidation("item_id is required")
	}
	if b.LotNo == "" {
		return apperror.NewValidation("lot_no is required")
	}
	if !b.ReceivedQty.IsPositive() {
		return apperror.NewValidation("received quantity must be positive").WithDetail("lot_no", b.LotNo)
	}
	if b.AvailableQty.IsNegative() || b.AvailableQty > b.ReceivedQty {
		return apperror.NewValidation("available quantity must be within [0, received]").
			WithDetail("lot_no", b.LotNo).
			WithDetail("available", b.AvailableQty.String()).
			WithDetail("received", b.ReceivedQty.String())
	}
	if !b.Status.Valid() {
		return apperror.NewValidation("unknown batch status").WithDetail("status", string(b.Status))
	}
	return nil
}

// IsExpired reports whether the expiry date is on or before the day of now.
func (b *Batch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && !b.ExpiryDate.After(DateOf(now))
}

// Eligible reports whether the batch may be allocated from on the day of now.
func (b *Batch) Eligible(now time.Time) bool {
	return b.Status == BatchAvailable && b.AvailableQty.IsPositive() && !b.IsExpired(now)
}

// DaysToExpiry returns whole days from the day of now to expiry, or -1 when
// the batch never expires.
func (b *Batch) DaysToExpiry(now time.Time) int {
	if b.ExpiryDate == nil {
		return -1
	}
	return int(DateOf(*b.ExpiryDate).Sub(DateOf(now)).Hours() / 24)
}

// Allocated is the quantity currently held by reservations or consumed.
func (b *Batch) Allocated() types.Quantity {
	return b.ReceivedQty - b.AvailableQty
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StockLevel is the available total of one item across AVAILABLE batches.
type StockLevel struct {
	ItemID           id.ID          `db:"item_id" json:"itemId"`
	SKU              string         `db:"sku" json:"sku"`
	Name             string         `db:"name" json:"name"`
	Available        types.Quantity `db:"available" json:"available"`
	ReorderThreshold types.Quantity `db:"reorder_threshold" json:"reorderThreshold"`
}

// IsLow reports whether the level is at or below the reorder threshold.
func (l StockLevel) IsLow() bool {
	return l.Available <= l.ReorderThreshold
}
