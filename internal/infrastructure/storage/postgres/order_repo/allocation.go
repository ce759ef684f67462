package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/infrastructure/storage/postgres"
)

const allocationsTable = "allocations"

var allocationColumns = []string{"id", "order_id", "order_item_id", "batch_id", "qty_allocated", "created_at"}

var _ orders.AllocationRepository = (*AllocationRepo)(nil)

// AllocationRepo implements orders.AllocationRepository and
// inventory.AllocationCounter.
type AllocationRepo struct {
	txm *postgres.TxManager
}

// NewAllocationRepo creates an allocation repository.
func NewAllocationRepo(txm *postgres.TxManager) *AllocationRepo {
	return &AllocationRepo{txm: txm}
}

func (r *AllocationRepo) Create(ctx context.Context, a *orders.Allocation) error {
	if !a.Qty.IsPositive() {
		return apperror.NewValidation("allocation quantity must be positive")
	}
	_, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), postgres.Insert(allocationsTable, allocationColumns, a))
	if err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewDuplicate("allocation", "id", a.ID.String())
		}
		if postgres.ForeignKeyViolation(err) {
			return apperror.NewNotFound("batch or order item", a.BatchID)
		}
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

// allocationsQuery selects allocations with the lot number of their batch.
func allocationsQuery() squirrel.SelectBuilder {
	cols := make([]string, 0, len(allocationColumns)+1)
	for _, c := range allocationColumns {
		cols = append(cols, "a."+c)
	}
	return postgres.Builder().
		Select(append(cols, "b.lot_no")...).
		From(allocationsTable + " a").
		Join("batches b ON b.id = a.batch_id")
}

func (r *AllocationRepo) GetByID(ctx context.Context, allocationID id.ID) (*orders.Allocation, error) {
	var a orders.Allocation
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &a, allocationsQuery().Where(squirrel.Eq{"a.id": allocationID})); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("allocation", allocationID)
		}
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return &a, nil
}

func (r *AllocationRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]*orders.Allocation, error) {
	var out []*orders.Allocation
	q := allocationsQuery().Where(squirrel.Eq{"a.order_id": orderID}).OrderBy("a.id")
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &out, q); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return out, nil
}

func (r *AllocationRepo) Delete(ctx context.Context, allocationID id.ID) error {
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx),
		postgres.Builder().Delete(allocationsTable).Where(squirrel.Eq{"id": allocationID}))
	if err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("allocation", allocationID)
	}
	return nil
}

func (r *AllocationRepo) CountByBatch(ctx context.Context, batchID id.ID) (int, error) {
	var n int
	q := postgres.Builder().Select("COUNT(*)").From(allocationsTable).Where(squirrel.Eq{"batch_id": batchID})
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &n, q); err != nil {
		return 0, fmt.Errorf("count allocations: %w", err)
	}
	return n, nil
}

func (r *AllocationRepo) SumByOrderItem(ctx context.Context, orderID id.ID) (map[id.ID]types.Quantity, error) {
	var rows []struct {
		OrderItemID id.ID          `db:"order_item_id"`
		Total       types.Quantity `db:"total"`
	}
	q := postgres.Builder().
		Select("order_item_id", "SUM(qty_allocated)::BIGINT AS total").
		From(allocationsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		GroupBy("order_item_id")
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &rows, q); err != nil {
		return nil, fmt.Errorf("sum allocations: %w", err)
	}
	out := make(map[id.ID]types.Quantity, len(rows))
	for _, row := range rows {
		out[row.OrderItemID] = row.Total
	}
	return out, nil
}

const shipmentsTable = "shipments"

var shipmentColumns = postgres.ExtractDBColumns[orders.Shipment]()

var _ orders.ShipmentRepository = (*ShipmentRepo)(nil)

// ShipmentRepo implements orders.ShipmentRepository.
type ShipmentRepo struct {
	txm *postgres.TxManager
}

// NewShipmentRepo creates a shipment repository.
func NewShipmentRepo(txm *postgres.TxManager) *ShipmentRepo {
	return &ShipmentRepo{txm: txm}
}

func (r *ShipmentRepo) Create(ctx context.Context, sh *orders.Shipment) error {
	_, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), postgres.Insert(shipmentsTable, shipmentColumns, sh))
	if err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewDuplicate("shipment", "shipment_no", sh.ShipmentNo)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (r *ShipmentRepo) GetByID(ctx context.Context, shipmentID id.ID) (*orders.Shipment, error) {
	var sh orders.Shipment
	q := postgres.Builder().Select(shipmentColumns...).From(shipmentsTable).Where(squirrel.Eq{"id": shipmentID})
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &sh, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("shipment", shipmentID)
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	return &sh, nil
}

func (r *ShipmentRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]*orders.Shipment, error) {
	var out []*orders.Shipment
	q := postgres.Builder().Select(shipmentColumns...).From(shipmentsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("shipped_at", "id")
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &out, q); err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	return out, nil
}

func (r *ShipmentRepo) Delete(ctx context.Context, shipmentID id.ID) error {
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx),
		postgres.Builder().Delete(shipmentsTable).Where(squirrel.Eq{"id": shipmentID}))
	if err != nil {
		return fmt.Errorf("delete shipment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("shipment", shipmentID)
	}
	return nil
}
