// Package inventory_repo provides PostgreSQL implementations of the item and
// batch repositories.
package inventory_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/infrastructure/storage/postgres"
)

const itemsTable = "items"

var itemColumns = postgres.ExtractDBColumns[inventory.Item]()

var _ inventory.ItemRepository = (*ItemRepo)(nil)

// ItemRepo implements inventory.ItemRepository.
type ItemRepo struct {
	txm *postgres.TxManager
}

// NewItemRepo creates an item repository.
func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{txm: txm}
}

func (r *ItemRepo) Create(ctx context.Context, item *inventory.Item) error {
	_, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), postgres.Insert(itemsTable, itemColumns, item))
	if err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewDuplicate("item", "sku", item.SKU)
		}
		if constraint, ok := postgres.CheckViolation(err); ok {
			return apperror.NewValidation("item violates " + constraint).WithDetail("sku", item.SKU)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (r *ItemRepo) selectItems() squirrel.SelectBuilder {
	return postgres.Builder().Select(itemColumns...).From(itemsTable)
}

func (r *ItemRepo) GetByID(ctx context.Context, itemID id.ID) (*inventory.Item, error) {
	return r.get(ctx, squirrel.Eq{"id": itemID}, itemID.String())
}

func (r *ItemRepo) GetBySKU(ctx context.Context, sku string) (*inventory.Item, error) {
	return r.get(ctx, squirrel.Expr("lower(sku) = lower(?)", strings.TrimSpace(sku)), sku)
}

func (r *ItemRepo) get(ctx context.Context, where squirrel.Sqlizer, key string) (*inventory.Item, error) {
	var item inventory.Item
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &item, r.selectItems().Where(where).Limit(1)); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("item", key)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

func (r *ItemRepo) List(ctx context.Context, f inventory.ItemFilter) (domain.ListResult[*inventory.Item], error) {
	return postgres.List[*inventory.Item](ctx, r.txm.GetQuerier(ctx), itemListQuery(f), f.Page, "sku")
}

func itemListQuery(f inventory.ItemFilter) squirrel.SelectBuilder {
	q := postgres.Builder().Select(itemColumns...).From(itemsTable)
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"sku": pattern},
			squirrel.ILike{"name": pattern},
		})
	}
	return q
}

func (r *ItemRepo) StockLevels(ctx context.Context, itemIDs []id.ID) ([]inventory.StockLevel, error) {
	var levels []inventory.StockLevel
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &levels, stockLevelsQuery(itemIDs)); err != nil {
		return nil, fmt.Errorf("stock levels: %w", err)
	}
	return levels, nil
}

func stockLevelsQuery(itemIDs []id.ID) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select(
			"i.id AS item_id", "i.sku", "i.name", "i.reorder_threshold",
			"COALESCE(SUM(b.available_qty) FILTER (WHERE b.status = 'AVAILABLE'), 0)::BIGINT AS available",
		).
		From("items i").
		LeftJoin("batches b ON b.item_id = i.id").
		GroupBy("i.id").
		OrderBy("i.sku")
	if len(itemIDs) > 0 {
		q = q.Where(squirrel.Eq{"i.id": itemIDs})
	}
	return q
}
