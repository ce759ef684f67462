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
	"stockalloc/internal/domain/returns"
	"stockalloc/internal/infrastructure/storage/postgres"
)

const returnsTable = "returns"

var returnColumns = postgres.ExtractDBColumns[returns.Return]()

var _ returns.Repository = (*ReturnRepo)(nil)

// ReturnRepo implements returns.Repository.
type ReturnRepo struct {
	txm *postgres.TxManager
}

// NewReturnRepo creates a return repository.
func NewReturnRepo(txm *postgres.TxManager) *ReturnRepo {
	return &ReturnRepo{txm: txm}
}

func (r *ReturnRepo) Create(ctx context.Context, ret *returns.Return) error {
	_, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), postgres.Insert(returnsTable, returnColumns, ret))
	if err != nil {
		if _, ok := postgres.UniqueViolation(err); ok {
			return apperror.NewDuplicate("return", "return_no", ret.ReturnNo)
		}
		if postgres.ForeignKeyViolation(err) {
			return apperror.NewNotFound("order item", ret.OrderItemID)
		}
		return fmt.Errorf("insert return: %w", err)
	}
	return nil
}

func selectReturns() squirrel.SelectBuilder {
	return postgres.Builder().Select(returnColumns...).From(returnsTable)
}

func (r *ReturnRepo) GetByID(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	return r.get(ctx, selectReturns().Where(squirrel.Eq{"id": returnID}), returnID)
}

func (r *ReturnRepo) GetForUpdate(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("return %s: row lock requires a transaction", returnID)
	}
	return r.get(ctx, selectReturns().Where(squirrel.Eq{"id": returnID}).Suffix("FOR UPDATE"), returnID)
}

func (r *ReturnRepo) get(ctx context.Context, q squirrel.SelectBuilder, returnID id.ID) (*returns.Return, error) {
	var ret returns.Return
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &ret, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("return", returnID)
		}
		return nil, fmt.Errorf("get return: %w", err)
	}
	return &ret, nil
}

func (r *ReturnRepo) List(ctx context.Context, f returns.Filter) (domain.ListResult[*returns.Return], error) {
	q := selectReturns()
	if f.OrderID != nil {
		q = q.Where(squirrel.Eq{"order_id": *f.OrderID})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	return postgres.List[*returns.Return](ctx, r.txm.GetQuerier(ctx), q, f.Page, "id DESC")
}

func (r *ReturnRepo) SetStatus(ctx context.Context, returnID id.ID, status returns.Status, batchID *id.ID) error {
	q := postgres.Builder().Update(returnsTable).
		Set("status", status).
		Set("batch_id", batchID).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": returnID})
	tag, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q)
	if err != nil {
		return fmt.Errorf("update return: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("return", returnID)
	}
	return nil
}

func (r *ReturnRepo) SumOpen(ctx context.Context, orderItemID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	q := postgres.Builder().
		Select("COALESCE(SUM(qty), 0)::BIGINT").
		From(returnsTable).
		Where(squirrel.Eq{"order_item_id": orderItemID}).
		Where(squirrel.NotEq{"status": returns.StatusRejected})
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &sum, q); err != nil {
		return 0, fmt.Errorf("sum returns: %w", err)
	}
	return sum, nil
}
