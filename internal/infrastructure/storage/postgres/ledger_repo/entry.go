// Package ledger_repo provides PostgreSQL implementations of the transaction
// log, the undo/redo stacks, document sequences and notifications.
package ledger_repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/infrastructure/storage/postgres"
)

const entriesTable = "transaction_log"

var entryColumns = []string{
	"id", "type", "qty", "item_id", "batch_id", "order_id", "order_item_id", "shipment_id",
	"actor", "meta", "meta_compressed", "created_at",
}

// entryRow is a transaction_log row before its metadata is decoded.
type entryRow struct {
	txlog.Entry
	MetaInline     json.RawMessage `db:"meta"`
	MetaCompressed []byte          `db:"meta_compressed"`
}

var _ txlog.Repository = (*EntryRepo)(nil)

// EntryRepo implements txlog.Repository. It has no update or delete, and the
// schema trigger rejects both.
type EntryRepo struct {
	txm   *postgres.TxManager
	codec *postgres.MetaCodec
}

// NewEntryRepo creates an entry repository.
func NewEntryRepo(txm *postgres.TxManager, codec *postgres.MetaCodec) *EntryRepo {
	return &EntryRepo{txm: txm, codec: codec}
}

// values returns the row in entryColumns order. Empty metadata columns are
// untyped nils so both INSERT and COPY write NULL.
func (r *EntryRepo) values(e *txlog.Entry) ([]any, error) {
	inline, packed, err := r.codec.Encode(e.Meta)
	if err != nil {
		return nil, err
	}
	var metaArg, packedArg any
	if inline != nil {
		metaArg = string(inline)
	}
	if packed != nil {
		packedArg = packed
	}
	return []any{
		e.ID, e.Type, e.Qty, e.ItemID, e.BatchID, e.OrderID, e.OrderItemID, e.ShipmentID,
		e.Actor, metaArg, packedArg, e.CreatedAt,
	}, nil
}

func (r *EntryRepo) Append(ctx context.Context, e *txlog.Entry) error {
	vals, err := r.values(e)
	if err != nil {
		return err
	}
	q := postgres.Builder().Insert(entriesTable).Columns(entryColumns...).Values(vals...)
	if _, err := postgres.Exec(ctx, r.txm.GetQuerier(ctx), q); err != nil {
		return translateEntryErr(err, e.ID)
	}
	return nil
}

// AppendBatch streams the entries with COPY. A failure loads none of them.
func (r *EntryRepo) AppendBatch(ctx context.Context, entries []*txlog.Entry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		vals, err := r.values(e)
		if err != nil {
			return err
		}
		rows = append(rows, vals)
	}
	if _, err := r.txm.CopyRows(ctx, entriesTable, entryColumns, rows); err != nil {
		var firstID id.ID
		if len(entries) > 0 {
			firstID = entries[0].ID
		}
		return translateEntryErr(err, firstID)
	}
	return nil
}

func translateEntryErr(err error, entryID id.ID) error {
	if _, ok := postgres.UniqueViolation(err); ok || postgres.ImmutableViolation(err) {
		return apperror.NewImmutable("transaction log entry", entryID)
	}
	return fmt.Errorf("append transaction log: %w", err)
}

func selectEntries() squirrel.SelectBuilder {
	return postgres.Builder().Select(entryColumns...).From(entriesTable)
}

func (r *EntryRepo) GetByID(ctx context.Context, entryID id.ID) (*txlog.Entry, error) {
	var row entryRow
	if err := postgres.Get(ctx, r.txm.GetQuerier(ctx), &row, selectEntries().Where(squirrel.Eq{"id": entryID})); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transaction log entry", entryID)
		}
		return nil, fmt.Errorf("get transaction log entry: %w", err)
	}
	return r.decode(&row)
}

func (r *EntryRepo) decode(row *entryRow) (*txlog.Entry, error) {
	meta, err := r.codec.Decode(row.MetaInline, row.MetaCompressed)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	e := row.Entry
	e.Meta = meta
	return &e, nil
}

func (r *EntryRepo) List(ctx context.Context, f txlog.Filter) (domain.ListResult[*txlog.Entry], error) {
	page, err := postgres.List[*entryRow](ctx, r.txm.GetQuerier(ctx), entryListQuery(f), f.Page, "id DESC")
	if err != nil {
		return domain.ListResult[*txlog.Entry]{}, err
	}
	items := make([]*txlog.Entry, 0, len(page.Items))
	for _, row := range page.Items {
		e, err := r.decode(row)
		if err != nil {
			return domain.ListResult[*txlog.Entry]{}, err
		}
		items = append(items, e)
	}
	return domain.ListResult[*txlog.Entry]{
		Items:      items,
		TotalCount: page.TotalCount,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}, nil
}

func entryListQuery(f txlog.Filter) squirrel.SelectBuilder {
	q := selectEntries()
	refs := []struct {
		col string
		val *id.ID
	}{
		{"batch_id", f.BatchID},
		{"item_id", f.ItemID},
		{"order_id", f.OrderID},
		{"order_item_id", f.OrderItemID},
		{"shipment_id", f.ShipmentID},
	}
	for _, ref := range refs {
		if ref.val != nil {
			q = q.Where(squirrel.Eq{ref.col: *ref.val})
		}
	}
	if len(f.Types) > 0 {
		q = q.Where(squirrel.Eq{"type": f.Types})
	}
	return q
}
