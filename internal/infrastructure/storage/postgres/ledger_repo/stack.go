package ledger_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockalloc/internal/domain/undo"
	"stockalloc/internal/infrastructure/storage/postgres"
)

// Stack tables.
const (
	UndoTable = "undo_stack"
	RedoTable = "redo_stack"
)

var stackColumns = postgres.ExtractDBColumns[undo.Record]()

var _ undo.Stack = (*StackRepo)(nil)

// StackRepo implements undo.Stack over one history table. Rows are ordered
// by a serial column, so the top is the highest seq.
type StackRepo struct {
	txm   *postgres.TxManager
	table string
}

// NewStackRepo creates a stack over table, UndoTable or RedoTable.
func NewStackRepo(txm *postgres.TxManager, table string) *StackRepo {
	return &StackRepo{txm: txm, table: table}
}

func (r *StackRepo) Push(ctx context.Context, rec *undo.Record) error {
	q := postgres.Builder().Insert(r.table).Columns(stackColumns...).Values(
		rec.ID, rec.OperationType, string(rec.Payload), rec.Actor, rec.Description, rec.CreatedAt,
	)
	if _, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q); err != nil {
		return fmt.Errorf("push %s: %w", r.table, err)
	}
	return nil
}

func (r *StackRepo) Pop(ctx context.Context) (*undo.Record, error) {
	var rec undo.Record
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &rec, popQuery(r.table)); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop %s: %w", r.table, err)
	}
	return &rec, nil
}

func popQuery(table string) squirrel.DeleteBuilder {
	top := postgres.Builder().Select("seq").From(table).OrderBy("seq DESC").Limit(1).Suffix("FOR UPDATE")
	return postgres.Builder().Delete(table).
		Where(squirrel.Expr("seq = (?)", top)).
		Suffix("RETURNING " + strings.Join(stackColumns, ", "))
}

func (r *StackRepo) List(ctx context.Context, limit int) ([]*undo.Record, error) {
	q := postgres.Builder().Select(stackColumns...).From(r.table).OrderBy("seq DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	var out []*undo.Record
	if err := postgres.Select(ctx, r.txm.GetQuerier(ctx), &out, q); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return out, nil
}

func (r *StackRepo) Len(ctx context.Context) (int, error) {
	var n int
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &n, postgres.Builder().Select("COUNT(*)").From(r.table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.table, err)
	}
	return n, nil
}
