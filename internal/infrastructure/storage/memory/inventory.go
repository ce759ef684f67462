package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/inventory"
)

// ItemRepo implements inventory.ItemRepository.
type ItemRepo struct{ s *Store }

func (r *ItemRepo) Create(ctx context.Context, item *inventory.Item) error {
	return r.s.view(ctx, func(d *data) error {
		for _, existing := range d.items {
			if strings.EqualFold(existing.SKU, item.SKU) {
				return apperror.NewDuplicate("item", "sku", item.SKU)
			}
		}
		d.items[item.ID] = *item
		return nil
	})
}

func (r *ItemRepo) GetByID(ctx context.Context, itemID id.ID) (*inventory.Item, error) {
	var out *inventory.Item
	err := r.s.view(ctx, func(d *data) error {
		it, ok := d.items[itemID]
		if !ok {
			return apperror.NewNotFound("item", itemID)
		}
		out = &it
		return nil
	})
	return out, err
}

func (r *ItemRepo) GetBySKU(ctx context.Context, sku string) (*inventory.Item, error) {
	var out *inventory.Item
	err := r.s.view(ctx, func(d *data) error {
		for _, it := range d.items {
			if strings.EqualFold(it.SKU, sku) {
				out = ptr(it)
				return nil
			}
		}
		return apperror.NewNotFound("item", sku)
	})
	return out, err
}

func (r *ItemRepo) List(ctx context.Context, f inventory.ItemFilter) (domain.ListResult[*inventory.Item], error) {
	var out domain.ListResult[*inventory.Item]
	err := r.s.view(ctx, func(d *data) error {
		search := strings.ToLower(strings.TrimSpace(f.Search))
		var all []*inventory.Item
		for _, it := range d.items {
			if search != "" &&
				!strings.Contains(strings.ToLower(it.SKU), search) &&
				!strings.Contains(strings.ToLower(it.Name), search) {
				continue
			}
			all = append(all, ptr(it))
		}
		slices.SortFunc(all, func(a, b *inventory.Item) int { return cmp.Compare(a.SKU, b.SKU) })
		out = paginate(all, f.Page)
		return nil
	})
	return out, err
}

func (r *ItemRepo) StockLevels(ctx context.Context, itemIDs []id.ID) ([]inventory.StockLevel, error) {
	var out []inventory.StockLevel
	err := r.s.view(ctx, func(d *data) error {
		totals := make(map[id.ID]types.Quantity)
		for _, b := range d.batches {
			if b.Status == inventory.BatchAvailable {
				totals[b.ItemID] += b.AvailableQty
			}
		}
		for _, it := range d.items {
			if len(itemIDs) > 0 && !slices.Contains(itemIDs, it.ID) {
				continue
			}
			out = append(out, inventory.StockLevel{
				ItemID:           it.ID,
				SKU:              it.SKU,
				Name:             it.Name,
				Available:        totals[it.ID],
				ReorderThreshold: it.ReorderThreshold,
			})
		}
		slices.SortFunc(out, func(a, b inventory.StockLevel) int { return cmp.Compare(a.SKU, b.SKU) })
		return nil
	})
	return out, err
}

// BatchRepo implements inventory.BatchRepository and ledger.Repository.
type BatchRepo struct{ s *Store }

func (r *BatchRepo) Create(ctx context.Context, b *inventory.Batch) error {
	return r.s.view(ctx, func(d *data) error {
		if _, ok := d.items[b.ItemID]; !ok {
			return apperror.NewNotFound("item", b.ItemID)
		}
		for _, existing := range d.batches {
			if existing.ItemID == b.ItemID && existing.LotNo == b.LotNo {
				return apperror.NewDuplicate("batch", "lot_no", b.LotNo)
			}
		}
		d.batches[b.ID] = *b
		return nil
	})
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	var out *inventory.Batch
	err := r.s.view(ctx, func(d *data) error {
		b, ok := d.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID)
		}
		out = &b
		return nil
	})
	return out, err
}

// GetForUpdate reads the batch. The caller's transaction already holds the
// store mutex.
func (r *BatchRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	return r.GetByID(ctx, batchID)
}

func (r *BatchRepo) List(ctx context.Context, f inventory.BatchFilter) (domain.ListResult[*inventory.Batch], error) {
	var out domain.ListResult[*inventory.Batch]
	now := time.Now()
	err := r.s.view(ctx, func(d *data) error {
		var all []*inventory.Batch
		for _, b := range d.batches {
			switch {
			case f.ItemID != nil && b.ItemID != *f.ItemID:
				continue
			case f.Status != nil && b.Status != *f.Status:
				continue
			case f.LotNo != "" && b.LotNo != f.LotNo:
				continue
			case f.Eligible && !b.Eligible(now):
				continue
			}
			all = append(all, ptr(b))
		}
		slices.SortFunc(all, func(a, b *inventory.Batch) int { return id.Compare(a.ID, b.ID) })
		out = paginate(all, f.Page)
		return nil
	})
	return out, err
}

func (r *BatchRepo) ListEligible(ctx context.Context, itemID id.ID, today time.Time) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := r.s.view(ctx, func(d *data) error {
		for _, b := range d.batches {
			if b.ItemID == itemID && b.Eligible(today) {
				out = append(out, ptr(b))
			}
		}
		return nil
	})
	return out, err
}

func (r *BatchRepo) SetAvailableQty(ctx context.Context, batchID id.ID, qty types.Quantity) error {
	return r.update(ctx, batchID, func(b *inventory.Batch) error {
		if qty.IsNegative() || qty > b.ReceivedQty {
			return apperror.NewValidation("available quantity must be within [0, received]").
				WithDetail("batch_id", batchID).
				WithDetail("available", qty.String())
		}
		b.AvailableQty = qty
		return nil
	})
}

func (r *BatchRepo) SetStatus(ctx context.Context, batchID id.ID, status inventory.BatchStatus) error {
	return r.update(ctx, batchID, func(b *inventory.Batch) error {
		b.Status = status
		return nil
	})
}

func (r *BatchRepo) update(ctx context.Context, batchID id.ID, fn func(b *inventory.Batch) error) error {
	return r.s.view(ctx, func(d *data) error {
		b, ok := d.batches[batchID]
		if !ok {
			return apperror.NewNotFound("batch", batchID)
		}
		if err := fn(&b); err != nil {
			return err
		}
		b.Touch()
		d.batches[batchID] = b
		return nil
	})
}

func (r *BatchRepo) Delete(ctx context.Context, batchID id.ID) error {
	return r.s.view(ctx, func(d *data) error {
		if _, ok := d.batches[batchID]; !ok {
			return apperror.NewNotFound("batch", batchID)
		}
		delete(d.batches, batchID)
		return nil
	})
}

func (r *BatchRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	err := r.s.view(ctx, func(d *data) error {
		for _, b := range d.batches {
			if b.Status != inventory.BatchAvailable || !b.AvailableQty.IsPositive() || b.ExpiryDate == nil {
				continue
			}
			if b.ExpiryDate.Before(from) || !b.ExpiryDate.Before(to) {
				continue
			}
			out = append(out, ptr(b))
		}
		slices.SortFunc(out, func(a, b *inventory.Batch) int { return a.ExpiryDate.Compare(*b.ExpiryDate) })
		return nil
	})
	return out, err
}
