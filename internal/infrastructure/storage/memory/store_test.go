package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

func seed(t *testing.T, st *Store) *inventory.Batch {
	t.Helper()
	repos := st.Repositories()
	item := inventory.NewItem("SKU-A", "Widget", 0)
	require.NoError(t, repos.Items.Create(context.Background(), item))
	b := inventory.NewBatch(item.ID, "LOT-1", types.NewQuantity(10), nil)
	require.NoError(t, repos.Batches.Create(context.Background(), b))
	return b
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	st := New()
	b := seed(t, st)
	repos := st.Repositories()
	boom := errors.New("boom")

	err := st.RunInTransaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, repos.Batches.SetAvailableQty(ctx, b.ID, types.NewQuantity(3)))
		// nested calls join the outer transaction
		return st.RunInTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, repos.Batches.SetStatus(ctx, b.ID, inventory.BatchHold))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, err := repos.Batches.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), got.AvailableQty)
	assert.Equal(t, inventory.BatchAvailable, got.Status)
}

func TestRunInTransaction_RollsBackOnPanic(t *testing.T) {
	st := New()
	b := seed(t, st)
	repos := st.Repositories()

	assert.Panics(t, func() {
		_ = st.RunInTransaction(context.Background(), func(ctx context.Context) error {
			_ = repos.Batches.SetAvailableQty(ctx, b.ID, 0)
			panic("boom")
		})
	})

	got, err := repos.Batches.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), got.AvailableQty)
}

func TestRunInTransaction_Commits(t *testing.T) {
	st := New()
	b := seed(t, st)
	repos := st.Repositories()

	err := st.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return repos.Batches.SetAvailableQty(ctx, b.ID, types.NewQuantity(4))
	})
	require.NoError(t, err)

	got, err := repos.Batches.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(4), got.AvailableQty)
}

func TestBatchRepo_Bounds(t *testing.T) {
	st := New()
	b := seed(t, st)
	repos := st.Repositories()

	err := repos.Batches.SetAvailableQty(context.Background(), b.ID, types.NewQuantity(11))
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	err = repos.Batches.SetAvailableQty(context.Background(), b.ID, types.NewQuantity(-1))
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	dup := inventory.NewBatch(b.ItemID, "LOT-1", types.NewQuantity(1), nil)
	err = repos.Batches.Create(context.Background(), dup)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate))

	orphan := inventory.NewBatch(id.New(), "LOT-X", types.NewQuantity(1), nil)
	err = repos.Batches.Create(context.Background(), orphan)
	assert.True(t, apperror.IsNotFound(err))
}

func TestEntryRepo_AppendOnly(t *testing.T) {
	st := New()
	b := seed(t, st)
	entries := st.Repositories().Entries
	ctx := context.Background()

	first := txlog.NewEntry(txlog.TypeReceipt, b.ItemID, b.ID, types.NewQuantity(10)).WithMeta(txlog.MetaLotNo, "LOT-1")
	first.ID = id.New()
	require.NoError(t, entries.Append(ctx, first))

	// callers cannot reach the stored copy
	first.Meta[txlog.MetaLotNo] = "changed"
	got, err := entries.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "LOT-1", got.Meta[txlog.MetaLotNo])

	second := txlog.NewEntry(txlog.TypeReserve, b.ItemID, b.ID, types.NewQuantity(-2))
	second.ID = id.New()
	err = entries.AppendBatch(ctx, []*txlog.Entry{second, first})
	assert.True(t, apperror.IsCode(err, apperror.CodeImmutable))

	page, err := entries.List(ctx, txlog.Filter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "a rejected batch appends nothing")
}

func TestStackRepo(t *testing.T) {
	st := New()
	repos := st.Repositories()
	ctx := context.Background()

	top, err := repos.UndoStack.Pop(ctx)
	require.NoError(t, err)
	assert.Nil(t, top)

	for _, desc := range []string{"one", "two", "three"} {
		rec, err := undo.NewRecord(undo.OpReceive, map[string]string{}, "tester", desc)
		require.NoError(t, err)
		require.NoError(t, repos.UndoStack.Push(ctx, rec))
	}

	list, err := repos.UndoStack.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Description)
	assert.Equal(t, "two", list[1].Description)

	top, err = repos.UndoStack.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "three", top.Description)

	n, err := repos.RedoStack.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "stacks are independent")
}
