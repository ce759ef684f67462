// Package txlog is the append-only record of every quantity-affecting event.
//
// Entries are never updated or deleted. Corrections are new entries.
package txlog

import (
	"context"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
)

// Type classifies a ledger entry.
type Type string

const (
	TypeReceipt    Type = "RECEIPT"
	TypeReserve    Type = "RESERVE"
	TypeRelease    Type = "RELEASE"
	TypeDeallocate Type = "DEALLOCATE"
	TypeShip       Type = "SHIP"
	TypeAdjust     Type = "ADJUST"
)

// Valid reports whether t is a known entry type.
func (t Type) Valid() bool {
	switch t {
	case TypeReceipt, TypeReserve, TypeRelease, TypeDeallocate, TypeShip, TypeAdjust:
		return true
	}
	return false
}

// Meta keys written by the engine.
const (
	MetaReason  = "reason"
	MetaLotNo   = "lot_no"
	MetaOrderNo = "order_no"
	MetaNote    = "note"
)

// Reasons recorded under MetaReason.
const (
	ReasonLineRollback   = "line_rollback"
	ReasonOrderRollback  = "order_rollback"
	ReasonDeallocate     = "deallocate"
	ReasonReturnRestock  = "return_restock"
	ReasonUndoAllocation = "undo_allocation"
	ReasonUndoReceive    = "undo_receive"
	ReasonUndoShip       = "undo_ship"
	ReasonUndoRestock    = "undo_restock"
	ReasonRedoReceive    = "redo_receive"
	ReasonManual         = "manual"
)

// Entry is one immutable ledger row.
//
// Qty is signed from the batch's point of view: RECEIPT and RELEASE are
// positive, RESERVE and SHIP are negative, ADJUST carries the delta.
type Entry struct {
	ID          id.ID          `db:"id" json:"id"`
	Type        Type           `db:"type" json:"type"`
	Qty         types.Quantity `db:"qty" json:"qty"`
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	BatchID     *id.ID         `db:"batch_id" json:"batchId,omitempty"`
	OrderID     *id.ID         `db:"order_id" json:"orderId,omitempty"`
	OrderItemID *id.ID         `db:"order_item_id" json:"orderItemId,omitempty"`
	ShipmentID  *id.ID         `db:"shipment_id" json:"shipmentId,omitempty"`
	Actor       string         `db:"actor" json:"actor"`
	Meta        map[string]any `db:"-" json:"meta,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// Validate checks entry invariants.
func (e *Entry) Validate(_ context.Context) error {
	if !e.Type.Valid() {
		return apperror.NewValidation("unknown transaction type").WithDetail("type", string(e.Type))
	}
	if id.IsNil(e.ItemID) {
		return apperror.NewValidation("transaction item_id is required")
	}
	if e.Qty.IsZero() {
		return apperror.NewValidation("transaction quantity must be non-zero")
	}
	return nil
}

// WithMeta sets a metadata key and returns e.
func (e *Entry) WithMeta(key string, value any) *Entry {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// Reason returns the recorded reason, if any.
func (e *Entry) Reason() string {
	if s, ok := e.Meta[MetaReason].(string); ok {
		return s
	}
	return ""
}

// Filter narrows List.
type Filter struct {
	BatchID     *id.ID
	ItemID      *id.ID
	OrderID     *id.ID
	OrderItemID *id.ID
	ShipmentID  *id.ID
	Types       []Type
	domain.Page
}

// Repository persists entries. It has no update or delete.
type Repository interface {
	// Append inserts one entry. Re-inserting an existing id fails with IMMUTABLE_RECORD.
	Append(ctx context.Context, e *Entry) error

	// AppendBatch inserts many entries in one round trip.
	AppendBatch(ctx context.Context, entries []*Entry) error

	GetByID(ctx context.Context, entryID id.ID) (*Entry, error)

	// List returns entries newest first.
	List(ctx context.Context, f Filter) (domain.ListResult[*Entry], error)
}
