package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

var qty = apptest.Qty

func TestCreateItem_UniqueSKU(t *testing.T) {
	env := apptest.New(t)
	env.Item(t, "SKU-A")

	_, err := env.Inventory.CreateItem(env.Ctx(), "SKU-A", "Again", "", 0)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate))

	got, err := env.Inventory.GetItemBySKU(env.Ctx(), "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, "Item SKU-A", got.Name)
}

func TestReceiveBatch(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")

	b := env.Batch(t, item, "LOT-1", 40, 10)
	assert.Equal(t, qty(40), b.ReceivedQty)
	assert.Equal(t, qty(40), b.AvailableQty)
	assert.Equal(t, inventory.BatchAvailable, b.Status)
	require.NotNil(t, b.ExpiryDate)
	assert.Equal(t, inventory.DateOf(env.Now.AddDate(0, 0, 10)), *b.ExpiryDate)

	page, err := env.TxLog.List(env.Ctx(), txlog.Filter{BatchID: &b.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, txlog.TypeReceipt, page.Items[0].Type)
	assert.Equal(t, qty(40), page.Items[0].Qty)

	undoRecs, _, err := env.Undo.History(env.Ctx(), 5)
	require.NoError(t, err)
	require.Len(t, undoRecs, 1)
	assert.Equal(t, undo.OpReceive, undoRecs[0].OperationType)

	_, err = env.Inventory.ReceiveBatch(env.Ctx(), inventory.ReceiveInput{ItemID: item.ID, LotNo: "LOT-1", Qty: qty(5)})
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate))

	_, err = env.Inventory.ReceiveBatch(env.Ctx(), inventory.ReceiveInput{ItemID: item.ID, LotNo: "LOT-2", Qty: 0})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestSetBatchStatus(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	b := env.Batch(t, item, "LOT-1", 10, apptest.NoExpiry)

	got, err := env.Inventory.SetBatchStatus(env.Ctx(), b.ID, inventory.BatchQuarantine)
	require.NoError(t, err)
	assert.Equal(t, inventory.BatchQuarantine, got.Status)

	_, err = env.Inventory.SetBatchStatus(env.Ctx(), b.ID, inventory.BatchExpired)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = env.Inventory.SetBatchStatus(env.Ctx(), b.ID, "BROKEN")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestDeleteBatch(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	unused := env.Batch(t, item, "LOT-1", 10, apptest.NoExpiry)
	used := env.Batch(t, item, "LOT-2", 10, 5)

	o := env.Order(t, apptest.Line(item, 3))
	_, err := env.Allocation.AllocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)

	err = env.Inventory.DeleteBatch(env.Ctx(), used.ID)
	assert.True(t, apperror.IsInvalidState(err))

	require.NoError(t, env.Inventory.DeleteBatch(env.Ctx(), unused.ID))
	_, err = env.Inventory.GetBatch(env.Ctx(), unused.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestUndoReceive(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	b := env.Batch(t, item, "LOT-1", 25, 20)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Undid receive operation: 1 batch(es) deleted"}, res.Messages)

	_, err = env.Inventory.GetBatch(env.Ctx(), b.ID)
	assert.True(t, apperror.IsNotFound(err))

	res, err = env.Undo.PerformRedo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Redid receive operation: 1 batch(es) created"}, res.Messages)

	page, err := env.Inventory.ListBatches(env.Ctx(), inventory.BatchFilter{ItemID: &item.ID, LotNo: "LOT-1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotEqual(t, b.ID, page.Items[0].ID)
	assert.Equal(t, qty(25), page.Items[0].AvailableQty)
	assert.Equal(t, b.ExpiryDate, page.Items[0].ExpiryDate)
}

func TestUndoReceive_RefusesAllocatedBatch(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	env.Batch(t, item, "LOT-1", 25, 20)

	o := env.Order(t, apptest.Line(item, 5))
	_, err := env.Allocation.AllocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)

	// drop the allocation record so the receipt is on top
	_, err = env.Repos.UndoStack.Pop(env.Ctx())
	require.NoError(t, err)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.Error(t, err)
	assert.Equal(t, []string{"Undo failed: Cannot undo receive: Batch LOT-1 has active allocations"}, res.Messages)

	n, err := env.Repos.UndoStack.Len(env.Ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLowStock(t *testing.T) {
	env := apptest.New(t)
	low, err := env.Inventory.CreateItem(env.Ctx(), "SKU-LOW", "Low", "", qty(20))
	require.NoError(t, err)
	ok, err := env.Inventory.CreateItem(env.Ctx(), "SKU-OK", "Ok", "", qty(5))
	require.NoError(t, err)
	env.Batch(t, low, "L-1", 20, apptest.NoExpiry)
	env.Batch(t, ok, "O-1", 50, apptest.NoExpiry)

	levels, err := env.Inventory.LowStock(env.Ctx())
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "SKU-LOW", levels[0].SKU)
	assert.Equal(t, qty(20), levels[0].Available)
}
