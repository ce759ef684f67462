package allocation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/undo"
)

func TestUndoAllocation_RoundTrip(t *testing.T) {
	env := apptest.New(t)
	item, b := fefoStock(t, env)
	o := env.Order(t, apptest.Line(item, 120))
	_, err := env.Allocation.AllocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.True(t, strings.HasPrefix(res.Messages[0], "Undid allocation for order "+o.OrderNo), res.Messages[0])

	assert.Equal(t, qty(50), env.Available(t, b[0].ID))
	assert.Equal(t, qty(100), env.Available(t, b[1].ID))
	got, err := env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusNew, got.Status)
	assert.True(t, got.Items[0].QtyAllocated.IsZero())

	_, redo, err := env.Undo.History(env.Ctx(), 10)
	require.NoError(t, err)
	require.Len(t, redo, 1)
	assert.Equal(t, undo.OpAllocation, redo[0].OperationType)
	assert.True(t, strings.HasPrefix(redo[0].Description, "Redo: "))

	res, err = env.Undo.PerformRedo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Messages[0], "Redid allocation for order"), res.Messages[0])
	assert.Equal(t, qty(0), env.Available(t, b[0].ID))
	assert.Equal(t, qty(30), env.Available(t, b[1].ID))

	got, err = env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAllocated, got.Status)

	// the redone allocation carries its new ids, so it can be undone again
	_, err = env.Undo.PerformUndo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, qty(50), env.Available(t, b[0].ID))
	assert.Equal(t, qty(100), env.Available(t, b[1].ID))
	env.RequireLedgerConsistent(t, b...)
}

func TestUndoAllocation_FailureKeepsRecord(t *testing.T) {
	env := apptest.New(t)
	item, _ := fefoStock(t, env)
	o := env.Order(t, apptest.Line(item, 120))
	_, err := env.Allocation.AllocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)

	_, err = env.Allocation.DeallocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)

	before, err := env.Repos.UndoStack.Len(env.Ctx())
	require.NoError(t, err)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeUndoRedo))
	require.Len(t, res.Messages, 1)
	assert.True(t, strings.HasPrefix(res.Messages[0], "Undo failed: "), res.Messages[0])
	assert.Contains(t, res.Messages[0], "no longer exists")

	after, err := env.Repos.UndoStack.Len(env.Ctx())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUndo_EmptyStacks(t *testing.T) {
	env := apptest.New(t)

	res, err := env.Undo.PerformUndo(env.Ctx(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"No more operations to undo"}, res.Messages)

	res, err = env.Undo.PerformRedo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"No more operations to redo"}, res.Messages)
}
