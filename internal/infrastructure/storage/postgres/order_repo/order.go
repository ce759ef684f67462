// Package order_repo provides PostgreSQL implementations of the order,
// allocation, shipment and return repositories.
package order_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/infrastructure/storage/postgres"
)

const (
	ordersTable = "orders"
	linesTable  = "order_items"
)

var (
	orderColumns = postgres.ExtractDBColumns[orders.Order]()

	// sku is joined from items on read and never written.
	lineColumns = []string{
		"id", "created_at", "updated_at", "order_id", "item_id", "line_no",
		"qty_requested", "qty_allocated", "qty_shipped",
	}
)

var _ orders.Repository = (*OrderRepo)(nil)

// OrderRepo implements orders.Repository.
type OrderRepo struct {
	txm *postgres.TxManager
}

// NewOrderRepo creates an order repository.
func NewOrderRepo(txm *postgres.TxManager) *OrderRepo {
	return &OrderRepo{txm: txm}
}

// Create inserts the order row and its lines in one round trip.
func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	queries := make([]postgres.BatchQuery, 0, len(o.Items)+1)
	q, err := toBatchQuery(postgres.Insert(ordersTable, orderColumns, o))
	if err != nil {
		return err
	}
	queries = append(queries, q)
	for _, line := range o.Items {
		q, err := toBatchQuery(postgres.Insert(linesTable, lineColumns, line))
		if err != nil {
			return err
		}
		queries = append(queries, q)
	}

	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.txm.ExecuteBatch(ctx, queries)
	})
	if err != nil {
		return translateWriteErr(err, "order", o.OrderNo)
	}
	return nil
}

func toBatchQuery(q squirrel.Sqlizer) (postgres.BatchQuery, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return postgres.BatchQuery{}, fmt.Errorf("build query: %w", err)
	}
	return postgres.BatchQuery{SQL: sql, Args: args}, nil
}

// translateWriteErr maps constraint failures of order and line writes.
func translateWriteErr(err error, entity, key string) error {
	if constraint, ok := postgres.UniqueViolation(err); ok {
		if constraint == "order_items_order_item_key" {
			return apperror.NewDuplicate("order line", "item_id", key)
		}
		return apperror.NewDuplicate(entity, "order_no", key)
	}
	if postgres.ForeignKeyViolation(err) {
		return apperror.NewNotFound("item", key)
	}
	if constraint, ok := postgres.CheckViolation(err); ok {
		return apperror.NewValidation(entity + " violates " + constraint)
	}
	return fmt.Errorf("write %s: %w", entity, err)
}

func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.get(ctx, orderID, false)
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("order %s: row lock requires a transaction", orderID)
	}
	return r.get(ctx, orderID, true)
}

func (r *OrderRepo) get(ctx context.Context, orderID id.ID, lock bool) (*orders.Order, error) {
	q := postgres.Builder().Select(orderColumns...).From(ordersTable).Where(squirrel.Eq{"id": orderID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	db := r.txm.GetQuerier(ctx)

	var o orders.Order
	if err := postgres.Get(ctx, db, &o, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := postgres.Select(ctx, db, &o.Items, linesQuery().Where(squirrel.Eq{"oi.order_id": orderID})); err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	return &o, nil
}

func linesQuery() squirrel.SelectBuilder {
	cols := make([]string, 0, len(lineColumns)+1)
	for _, c := range lineColumns {
		cols = append(cols, "oi."+c)
	}
	return postgres.Builder().
		Select(append(cols, "i.sku")...).
		From(linesTable + " oi").
		Join("items i ON i.id = oi.item_id").
		OrderBy("oi.line_no")
}

func (r *OrderRepo) List(ctx context.Context, f orders.Filter) (domain.ListResult[*orders.Order], error) {
	return postgres.List[*orders.Order](ctx, r.txm.GetQuerier(ctx), orderListQuery(f), f.Page, "id DESC")
}

func orderListQuery(f orders.Filter) squirrel.SelectBuilder {
	q := postgres.Builder().Select(orderColumns...).From(ordersTable)
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.CustomerRef != "" {
		q = q.Where(squirrel.Eq{"customer_ref": f.CustomerRef})
	}
	return q
}

func (r *OrderRepo) ListIDsByStatus(ctx context.Context, statuses []orders.Status, limit int) ([]id.ID, error) {
	var ids []id.ID
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &ids, idsByStatusQuery(statuses, limit)); err != nil {
		return nil, fmt.Errorf("list order ids: %w", err)
	}
	return ids, nil
}

func idsByStatusQuery(statuses []orders.Status, limit int) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select("id").
		From(ordersTable).
		Where(squirrel.Eq{"status": statuses}).
		OrderBy("created_at", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func (r *OrderRepo) ListIDsAfter(ctx context.Context, status orders.Status, after id.ID, limit int) ([]id.ID, error) {
	var ids []id.ID
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &ids, idsAfterQuery(status, after, limit)); err != nil {
		return nil, fmt.Errorf("list order ids after %s: %w", after, err)
	}
	return ids, nil
}

func idsAfterQuery(status orders.Status, after id.ID, limit int) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select("id").
		From(ordersTable).
		Where(squirrel.Eq{"status": status}).
		Where(squirrel.Gt{"id": after}).
		OrderBy("id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func (r *OrderRepo) SetStatus(ctx context.Context, orderID id.ID, status orders.Status) error {
	q := postgres.Builder().Update(ordersTable).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": orderID})
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("order", orderID)
	}
	return nil
}

func (r *OrderRepo) AddLine(ctx context.Context, line *orders.OrderItem) error {
	_, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), postgres.Insert(linesTable, lineColumns, line))
	if err != nil {
		if postgres.ForeignKeyViolation(err) {
			return apperror.NewNotFound("order or item", line.OrderID)
		}
		return translateWriteErr(err, "order line", line.ItemID.String())
	}
	return nil
}

func (r *OrderRepo) GetItem(ctx context.Context, orderItemID id.ID) (*orders.OrderItem, error) {
	var line orders.OrderItem
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &line, linesQuery().Where(squirrel.Eq{"oi.id": orderItemID})); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order item", orderItemID)
		}
		return nil, fmt.Errorf("get order item: %w", err)
	}
	return &line, nil
}

func (r *OrderRepo) AddAllocated(ctx context.Context, orderItemID id.ID, delta types.Quantity) error {
	return r.updateLine(ctx, orderItemID, "qty_allocated", squirrel.Expr("qty_allocated + ?", delta),
		"allocated quantity must be within [0, requested]")
}

func (r *OrderRepo) SetAllocated(ctx context.Context, orderItemID id.ID, qty types.Quantity) error {
	return r.updateLine(ctx, orderItemID, "qty_allocated", qty,
		"allocated quantity must be within [0, requested]")
}

func (r *OrderRepo) AddShipped(ctx context.Context, orderItemID id.ID, delta types.Quantity) error {
	return r.updateLine(ctx, orderItemID, "qty_shipped", squirrel.Expr("qty_shipped + ?", delta),
		"shipped quantity cannot be negative")
}

func (r *OrderRepo) updateLine(ctx context.Context, orderItemID id.ID, column string, value any, boundsMsg string) error {
	q := postgres.Builder().Update(linesTable).
		Set(column, value).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": orderItemID})
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q)
	if err != nil {
		if _, ok := postgres.CheckViolation(err); ok {
			return apperror.NewValidation(boundsMsg).WithDetail("order_item_id", orderItemID)
		}
		return fmt.Errorf("update order item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("order item", orderItemID)
	}
	return nil
}
