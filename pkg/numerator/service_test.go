package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore simulates the sys_sequences upsert.
type mockStore struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string]int64)}
}

func (m *mockStore) Increment(_ context.Context, key string, by int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.values[key] += by
	return m.values[key], nil
}

var day = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	store := newMockStore()
	svc := New(store)
	ctx := context.Background()

	num, err := svc.Next(ctx, "ORD", day)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260315-0001", num)

	num, err = svc.Next(ctx, "ORD", day)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260315-0002", num)

	// next day restarts
	num, err = svc.Next(ctx, "ORD", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260316-0001", num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	store := newMockStore()
	svc := New(store)
	ctx := context.Background()
	cfg := DailyConfig("SHIP")
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, cfg, opts, day)
	require.NoError(t, err)
	assert.Equal(t, "SHIP-20260315-0001", num)
	assert.Equal(t, int64(10), store.values["SHIP_20260315"])

	for i := 0; i < 9; i++ {
		_, err = svc.GetNextNumber(ctx, cfg, opts, day)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.calls, "range of 10 served from memory")

	num, err = svc.GetNextNumber(ctx, cfg, opts, day)
	require.NoError(t, err)
	assert.Equal(t, "SHIP-20260315-0011", num)
	assert.Equal(t, int64(20), store.values["SHIP_20260315"])
}

func TestGetNextNumber_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("db down")

	_, err := New(store).Next(context.Background(), "ORD", day)
	assert.ErrorContains(t, err, "db down")
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		cfg  Config
		num  int64
		want string
	}{
		{DailyConfig("RET"), 7, "RET-20260315-0007"},
		{Config{Prefix: "INV", ResetPeriod: "year", PadWidth: 5}, 12, "INV-2026-00012"},
		{Config{Prefix: "X", ResetPeriod: "never"}, 3, "X-0003"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatNumber(tt.cfg, day, tt.num))
		})
	}
}

func TestParseNumber(t *testing.T) {
	assert.Equal(t, int64(7), ParseNumber("ORD-20260315-0007"))
	assert.Equal(t, int64(3), ParseNumber("X-0003"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
}
