package expiry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/domain/expiry"
	"stockalloc/internal/domain/inventory"
)

func TestScan(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	past := env.Batch(t, item, "PAST", 10, -3)
	today := env.Batch(t, item, "TODAY", 10, 0)
	soon := env.Batch(t, item, "SOON", 10, 6)
	later := env.Batch(t, item, "LATER", 10, 7)
	never := env.Batch(t, item, "NEVER", 10, apptest.NoExpiry)

	held := env.Batch(t, item, "HELD", 10, -1)
	_, err := env.Inventory.SetBatchStatus(env.Ctx(), held.ID, inventory.BatchHold)
	require.NoError(t, err)

	res, err := env.Expiry.Scan(env.Ctx(), apptest.Actor, env.Now)
	require.NoError(t, err)
	assert.Equal(t, expiry.Result{ExpiredCount: 1, NearExpiryCount: 2}, res)

	status := func(b *inventory.Batch) inventory.BatchStatus {
		got, err := env.Inventory.GetBatch(env.Ctx(), b.ID)
		require.NoError(t, err)
		return got.Status
	}
	assert.Equal(t, inventory.BatchExpired, status(past))
	assert.Equal(t, inventory.BatchAvailable, status(today))
	assert.Equal(t, inventory.BatchAvailable, status(soon))
	assert.Equal(t, inventory.BatchAvailable, status(later))
	assert.Equal(t, inventory.BatchAvailable, status(never))
	assert.Equal(t, inventory.BatchHold, status(held))

	notes, err := env.Notifications.List(env.Ctx(), apptest.Actor, 10)
	require.NoError(t, err)
	var msgs []string
	for _, n := range notes {
		msgs = append(msgs, n.Message)
	}
	assert.ElementsMatch(t, []string{
		"1 batch(es) marked as expired",
		"2 batch(es) expire within 7 days",
	}, msgs)

	// a second run finds nothing new to expire
	res, err = env.Expiry.Scan(env.Ctx(), apptest.Actor, env.Now)
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredCount)
}

func TestScan_Empty(t *testing.T) {
	env := apptest.New(t)

	res, err := env.Expiry.Scan(env.Ctx(), apptest.Actor, env.Now)
	require.NoError(t, err)
	assert.Equal(t, expiry.Result{}, res)

	notes, err := env.Notifications.List(env.Ctx(), apptest.Actor, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
