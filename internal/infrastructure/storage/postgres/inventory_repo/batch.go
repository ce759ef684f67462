package inventory_repo

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
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/infrastructure/storage/postgres"
)

const batchesTable = "batches"

var batchColumns = postgres.ExtractDBColumns[inventory.Batch]()

var _ inventory.BatchRepository = (*BatchRepo)(nil)

// BatchRepo implements inventory.BatchRepository and ledger.Repository.
type BatchRepo struct {
	txm *postgres.TxManager
}

// NewBatchRepo creates a batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{txm: txm}
}

func (r *BatchRepo) Create(ctx context.Context, b *inventory.Batch) error {
	_, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), postgres.Insert(batchesTable, batchColumns, b))
	if err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewDuplicate("batch", "lot_no", b.LotNo)
		}
		if postgres.ForeignKeyViolation(err) {
			return apperror.NewNotFound("item", b.ItemID)
		}
		if constraint, ok := postgres.CheckViolation(err); ok {
			return apperror.NewValidation("batch violates " + constraint).WithDetail("lot_no", b.LotNo)
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func selectBatches() squirrel.SelectBuilder {
	return postgres.Builder().Select(batchColumns...).From(batchesTable)
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	return r.get(ctx, selectBatches().Where(squirrel.Eq{"id": batchID}), batchID)
}

func (r *BatchRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*inventory.Batch, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("batch %s: row lock requires a transaction", batchID)
	}
	return r.get(ctx, selectBatches().Where(squirrel.Eq{"id": batchID}).Suffix("FOR UPDATE"), batchID)
}

func (r *BatchRepo) get(ctx context.Context, q squirrel.SelectBuilder, batchID id.ID) (*inventory.Batch, error) {
	var b inventory.Batch
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &b, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

func (r *BatchRepo) List(ctx context.Context, f inventory.BatchFilter) (domain.ListResult[*inventory.Batch], error) {
	return postgres.List[*inventory.Batch](ctx, r.txm.GetQuerier(ctx), batchListQuery(f, time.Now()), f.Page, "id")
}

func batchListQuery(f inventory.BatchFilter, now time.Time) squirrel.SelectBuilder {
	q := selectBatches()
	if f.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *f.ItemID})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.LotNo != "" {
		q = q.Where(squirrel.Eq{"lot_no": f.LotNo})
	}
	if f.Eligible {
		q = q.Where(eligible(now))
	}
	return q
}

// eligible matches AVAILABLE batches with stock that have not expired on the
// day of now.
func eligible(now time.Time) squirrel.And {
	return squirrel.And{
		squirrel.Eq{"status": inventory.BatchAvailable},
		squirrel.Gt{"available_qty": 0},
		squirrel.Or{
			squirrel.Eq{"expiry_date": nil},
			squirrel.Gt{"expiry_date": inventory.DateOf(now)},
		},
	}
}

func (r *BatchRepo) ListEligible(ctx context.Context, itemID id.ID, today time.Time) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	q := selectBatches().
		Where(squirrel.Eq{"item_id": itemID}).
		Where(eligible(today)).
		OrderBy("expiry_date NULLS LAST", "id")
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &out, q); err != nil {
		return nil, fmt.Errorf("list eligible batches: %w", err)
	}
	return out, nil
}

func (r *BatchRepo) SetAvailableQty(ctx context.Context, batchID id.ID, qty types.Quantity) error {
	err := r.update(ctx, batchID, postgres.Builder().Update(batchesTable).Set("available_qty", qty))
	if _, ok := postgres.CheckViolation(err); ok {
		return apperror.NewValidation("available quantity must be within [0, received]").
			WithDetail("batch_id", batchID).
			WithDetail("available", qty.String())
	}
	return err
}

func (r *BatchRepo) SetStatus(ctx context.Context, batchID id.ID, status inventory.BatchStatus) error {
	return r.update(ctx, batchID, postgres.Builder().Update(batchesTable).Set("status", status))
}

func (r *BatchRepo) update(ctx context.Context, batchID id.ID, q squirrel.UpdateBuilder) error {
	q = q.Set("updated_at", time.Now().UTC()).Where(squirrel.Eq{"id": batchID})
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("batch", batchID)
	}
	return nil
}

func (r *BatchRepo) Delete(ctx context.Context, batchID id.ID) error {
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx),
		postgres.Builder().Delete(batchesTable).Where(squirrel.Eq{"id": batchID}))
	if err != nil {
		if postgres.ForeignKeyViolation(err) {
			return apperror.NewInvalidState("batch", batchID, "referenced")
		}
		return fmt.Errorf("delete batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("batch", batchID)
	}
	return nil
}

func (r *BatchRepo) ListExpiring(ctx context.Context, from, to time.Time) ([]*inventory.Batch, error) {
	var out []*inventory.Batch
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &out, expiringQuery(from, to)); err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}
	return out, nil
}

func expiringQuery(from, to time.Time) squirrel.SelectBuilder {
	return selectBatches().
		Where(squirrel.Eq{"status": inventory.BatchAvailable}).
		Where(squirrel.Gt{"available_qty": 0}).
		Where(squirrel.GtOrEq{"expiry_date": from}).
		Where(squirrel.Lt{"expiry_date": to}).
		OrderBy("expiry_date", "id")
}
