package ledger_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/txlog"
)

var qty = apptest.Qty

func TestReserve_Concurrent(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	b := env.Batch(t, item, "LOT-1", 100, apptest.NoExpiry)

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Ledger.Reserve(env.Ctx(), b.ID, qty(15))
			switch {
			case err == nil:
				ok.Add(1)
			case apperror.IsCode(err, apperror.CodeInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), ok.Load())
	assert.Equal(t, int32(4), short.Load())
	assert.Equal(t, qty(10), env.Available(t, b.ID))
}

func TestReserve_Rejects(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	b := env.Batch(t, item, "LOT-1", 10, apptest.NoExpiry)

	_, err := env.Ledger.Reserve(env.Ctx(), b.ID, 0)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = env.Ledger.Reserve(env.Ctx(), b.ID, qty(11))
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	_, err = env.Inventory.SetBatchStatus(env.Ctx(), b.ID, inventory.BatchHold)
	require.NoError(t, err)
	_, err = env.Ledger.Reserve(env.Ctx(), b.ID, qty(1))
	assert.True(t, apperror.IsInvalidState(err))

	assert.Equal(t, qty(10), env.Available(t, b.ID))
}

func TestReleaseAndAdjust_Bounds(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	b := env.Batch(t, item, "LOT-1", 10, apptest.NoExpiry)

	left, err := env.Ledger.Reserve(env.Ctx(), b.ID, qty(4))
	require.NoError(t, err)
	assert.Equal(t, qty(6), left)

	_, err = env.Ledger.Release(env.Ctx(), b.ID, qty(5))
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "release above received")

	left, err = env.Ledger.Release(env.Ctx(), b.ID, qty(4))
	require.NoError(t, err)
	assert.Equal(t, qty(10), left)

	left, err = env.Ledger.Adjust(env.Ctx(), b.ID, qty(-10))
	require.NoError(t, err)
	assert.True(t, left.IsZero())

	_, err = env.Ledger.Adjust(env.Ctx(), b.ID, qty(-1))
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	_, err = env.Ledger.Adjust(env.Ctx(), b.ID, 0)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestManualReserveRelease_Logged(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	b := env.Batch(t, item, "LOT-1", 10, apptest.NoExpiry)

	_, err := env.Ledger.ReserveBatch(env.Ctx(), b.ID, qty(3))
	require.NoError(t, err)
	_, err = env.Ledger.ReleaseBatch(env.Ctx(), b.ID, qty(2))
	require.NoError(t, err)

	page, err := env.TxLog.List(env.Ctx(), txlog.Filter{BatchID: &b.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, txlog.TypeRelease, page.Items[0].Type)
	assert.Equal(t, qty(2), page.Items[0].Qty)
	assert.Equal(t, txlog.TypeReserve, page.Items[1].Type)
	assert.Equal(t, qty(-3), page.Items[1].Qty)
	assert.Equal(t, txlog.ReasonManual, page.Items[1].Reason())
	assert.Equal(t, qty(9), env.Available(t, b.ID))
}
