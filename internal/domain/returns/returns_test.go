package returns_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/returns"
	"stockalloc/internal/domain/txlog"
)

var qty = apptest.Qty

// shipped ships 120 units from LOT-5 (50) and LOT-30 (70).
func shipped(t *testing.T, env *apptest.Env) (*orders.Order, []*inventory.Batch) {
	t.Helper()
	item := env.Item(t, "SKU-A")
	b := []*inventory.Batch{
		env.Batch(t, item, "LOT-5", 50, 5),
		env.Batch(t, item, "LOT-30", 100, 30),
	}
	o := env.Order(t, apptest.Line(item, 120))
	_, err := env.Allocation.AllocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)
	_, err = env.Orders.Ship(env.Ctx(), o.ID, orders.ShipInput{})
	require.NoError(t, err)

	o, err = env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	return o, b
}

func TestCreate_LimitedByShipped(t *testing.T) {
	env := apptest.New(t)
	o, _ := shipped(t, env)
	lineID := o.Items[0].ID

	r, err := env.Returns.Create(env.Ctx(), lineID, qty(100), " damaged ")
	require.NoError(t, err)
	assert.Equal(t, returns.StatusPending, r.Status)
	assert.Equal(t, "RET-20260315-0001", r.ReturnNo)
	assert.Equal(t, "damaged", r.Reason)
	assert.Equal(t, o.ID, r.OrderID)

	_, err = env.Returns.Create(env.Ctx(), lineID, qty(21), "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = env.Returns.Reject(env.Ctx(), r.ID)
	require.NoError(t, err)

	// rejected returns free the quantity again
	_, err = env.Returns.Create(env.Ctx(), lineID, qty(120), "")
	require.NoError(t, err)

	_, err = env.Returns.Create(env.Ctx(), lineID, 0, "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestCreate_NothingShipped(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	o := env.Order(t, apptest.Line(item, 5))

	_, err := env.Returns.Create(env.Ctx(), o.Items[0].ID, qty(1), "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestRestock_IntoFirstShippedBatch(t *testing.T) {
	env := apptest.New(t)
	o, b := shipped(t, env)
	r, err := env.Returns.Create(env.Ctx(), o.Items[0].ID, qty(10), "")
	require.NoError(t, err)

	got, err := env.Returns.Restock(env.Ctx(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusRestocked, got.Status)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, b[0].ID, *got.BatchID)
	assert.Equal(t, qty(10), env.Available(t, b[0].ID))

	page, err := env.TxLog.List(env.Ctx(), txlog.Filter{BatchID: &b[0].ID, Types: []txlog.Type{txlog.TypeAdjust}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, qty(10), page.Items[0].Qty)
	assert.Equal(t, txlog.ReasonReturnRestock, page.Items[0].Reason())

	assert.Len(t, env.Repos.Events.Events(env.Ctx(), notify.EventInventoryAdjusted), 1)

	_, err = env.Returns.Restock(env.Ctx(), r.ID)
	assert.True(t, apperror.IsInvalidState(err))
	_, err = env.Returns.Reject(env.Ctx(), r.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestRestock_SplitsAcrossShippedBatches(t *testing.T) {
	env := apptest.New(t)
	o, b := shipped(t, env)
	lineID := o.Items[0].ID

	r, err := env.Returns.Create(env.Ctx(), lineID, qty(60), "")
	require.NoError(t, err)
	got, err := env.Returns.Restock(env.Ctx(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, b[0].ID, *got.BatchID)
	assert.Equal(t, qty(50), env.Available(t, b[0].ID))
	assert.Equal(t, qty(40), env.Available(t, b[1].ID))
	assert.Len(t, env.Repos.Events.Events(env.Ctx(), notify.EventInventoryAdjusted), 2)

	_, err = env.Undo.PerformUndo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.True(t, env.Available(t, b[0].ID).IsZero())
	assert.Equal(t, qty(30), env.Available(t, b[1].ID))

	_, err = env.Undo.PerformRedo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, qty(50), env.Available(t, b[0].ID))
	assert.Equal(t, qty(40), env.Available(t, b[1].ID))

	// LOT-5 already took back all it shipped; the rest goes to LOT-30
	second, err := env.Returns.Create(env.Ctx(), lineID, qty(60), "")
	require.NoError(t, err)
	got, err = env.Returns.Restock(env.Ctx(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, b[1].ID, *got.BatchID)
	assert.Equal(t, qty(50), env.Available(t, b[0].ID))
	assert.Equal(t, qty(100), env.Available(t, b[1].ID))
}

func TestUndoRestock(t *testing.T) {
	env := apptest.New(t)
	o, b := shipped(t, env)
	r, err := env.Returns.Create(env.Ctx(), o.Items[0].ID, qty(10), "")
	require.NoError(t, err)
	_, err = env.Returns.Restock(env.Ctx(), r.ID)
	require.NoError(t, err)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Undid restock from return " + r.ReturnNo}, res.Messages)
	assert.True(t, env.Available(t, b[0].ID).IsZero())

	got, err := env.Returns.Get(env.Ctx(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusPending, got.Status)
	assert.Nil(t, got.BatchID)

	res, err = env.Undo.PerformRedo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Redid restock from return " + r.ReturnNo}, res.Messages)
	assert.Equal(t, qty(10), env.Available(t, b[0].ID))
}

func TestUndoRestock_StockAlreadyReserved(t *testing.T) {
	env := apptest.New(t)
	o, b := shipped(t, env)
	r, err := env.Returns.Create(env.Ctx(), o.Items[0].ID, qty(10), "")
	require.NoError(t, err)
	_, err = env.Returns.Restock(env.Ctx(), r.ID)
	require.NoError(t, err)

	// reserve the restocked units again
	_, err = env.Ledger.Reserve(env.Ctx(), b[0].ID, qty(10))
	require.NoError(t, err)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.Error(t, err)
	assert.Equal(t, []string{"Undo failed: Cannot undo restock: stock from return " + r.ReturnNo + " was already allocated"}, res.Messages)

	got, err := env.Returns.Get(env.Ctx(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusRestocked, got.Status)
}

func TestList_ByOrder(t *testing.T) {
	env := apptest.New(t)
	o, _ := shipped(t, env)
	_, err := env.Returns.Create(env.Ctx(), o.Items[0].ID, qty(1), "")
	require.NoError(t, err)
	_, err = env.Returns.Create(env.Ctx(), o.Items[0].ID, qty(2), "")
	require.NoError(t, err)

	page, err := env.Returns.List(env.Ctx(), returns.Filter{OrderID: &o.ID})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	restocked := returns.StatusRestocked
	page, err = env.Returns.List(env.Ctx(), returns.Filter{Status: &restocked})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
