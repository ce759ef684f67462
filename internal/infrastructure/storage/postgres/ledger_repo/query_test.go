package ledger_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/core/id"
	"stockalloc/internal/domain/txlog"
)

func TestEntryListQuery(t *testing.T) {
	orderID, batchID := id.New(), id.New()
	sql, args, err := entryListQuery(txlog.Filter{
		OrderID: &orderID,
		BatchID: &batchID,
		Types:   []txlog.Type{txlog.TypeShip, txlog.TypeReserve},
	}).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, type, qty, item_id, batch_id, order_id, order_item_id, shipment_id, actor, meta, meta_compressed, created_at "+
			"FROM transaction_log WHERE batch_id = $1 AND order_id = $2 AND type IN ($3,$4)", sql)
	assert.Equal(t, []any{batchID.String(), orderID.String(), txlog.TypeShip, txlog.TypeReserve}, args)
}

func TestPopQuery(t *testing.T) {
	sql, args, err := popQuery(RedoTable).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"DELETE FROM redo_stack WHERE seq = (SELECT seq FROM redo_stack ORDER BY seq DESC LIMIT 1 FOR UPDATE) "+
			"RETURNING id, operation_type, payload, actor, description, created_at", sql)
	assert.Empty(t, args)
}

func TestNotificationsQuery(t *testing.T) {
	sql, args, err := notificationsQuery("tester", 5).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, actor, message, level, created_at FROM notifications "+
			"WHERE actor = $1 ORDER BY created_at DESC, id DESC LIMIT 5", sql)
	assert.Equal(t, []any{"tester"}, args)

	sql, args, err = notificationsQuery("", 0).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, actor, message, level, created_at FROM notifications ORDER BY created_at DESC, id DESC", sql)
	assert.Empty(t, args)
}
