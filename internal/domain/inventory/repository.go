package inventory

import (
	"context"
	"time"

	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
)

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Search string
	domain.Page
}

// ItemRepository persists items.
type ItemRepository interface {
	// Create inserts an item. A taken SKU yields DUPLICATE_ENTRY.
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, itemID id.ID) (*Item, error)
	GetBySKU(ctx context.Context, sku string) (*Item, error)
	List(ctx context.Context, f ItemFilter) (domain.ListResult[*Item], error)

	// StockLevels sums available quantity of AVAILABLE batches per item.
	// An empty itemIDs means every item.
	StockLevels(ctx context.Context, itemIDs []id.ID) ([]StockLevel, error)
}

// BatchFilter narrows ListBatches.
type BatchFilter struct {
	ItemID   *id.ID
	Status   *BatchStatus
	LotNo    string
	Eligible bool // only AVAILABLE, positive and unexpired on the current date
	domain.Page
}

// BatchRepository persists batches.
type BatchRepository interface {
	// Create inserts a batch. A taken (item, lot) yields DUPLICATE_ENTRY.
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)
	List(ctx context.Context, f BatchFilter) (domain.ListResult[*Batch], error)

	// ListEligible returns candidate batches of an item on the given day:
	// AVAILABLE, available > 0, expiry null or after today. Order is unspecified.
	ListEligible(ctx context.Context, itemID id.ID, today time.Time) ([]*Batch, error)

	// GetForUpdate reads a batch and holds its row lock until the
	// enclosing transaction ends. Requires a transaction in ctx.
	GetForUpdate(ctx context.Context, batchID id.ID) (*Batch, error)

	// SetAvailableQty writes a new available quantity.
	SetAvailableQty(ctx context.Context, batchID id.ID, qty types.Quantity) error

	SetStatus(ctx context.Context, batchID id.ID, status BatchStatus) error

	Delete(ctx context.Context, batchID id.ID) error

	// ListExpiring returns AVAILABLE batches with positive stock whose expiry
	// date falls in [from, to).
	ListExpiring(ctx context.Context, from, to time.Time) ([]*Batch, error)
}

// AllocationCounter reports whether a batch is referenced by allocations.
type AllocationCounter interface {
	CountByBatch(ctx context.Context, batchID id.ID) (int, error)
}
