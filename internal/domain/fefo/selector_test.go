package fefo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
)

var now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	batches []*inventory.Batch
	err     error
}

func (f *fakeSource) ListEligible(_ context.Context, _ id.ID, _ time.Time) ([]*inventory.Batch, error) {
	return f.batches, f.err
}

func batch(lot string, qty int64, days *int) *inventory.Batch {
	var exp *time.Time
	if days != nil {
		t := now.AddDate(0, 0, *days)
		exp = &t
	}
	return inventory.NewBatch(id.New(), lot, types.NewQuantity(qty), exp)
}

func days(n int) *int { return &n }

func lots(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.LotNo
	}
	return out
}

func TestCandidates_Order(t *testing.T) {
	undatedA := batch("UNDATED-A", 5, nil)
	late := batch("LATE", 5, days(30))
	tieFirst := batch("TIE-1", 5, days(5))
	tieSecond := batch("TIE-2", 5, days(5))
	undatedB := batch("UNDATED-B", 5, nil)
	early := batch("EARLY", 5, days(1))

	src := &fakeSource{batches: []*inventory.Batch{undatedB, late, tieSecond, undatedA, early, tieFirst}}
	sel := NewSelector(src, WithClock(func() time.Time { return now }))

	cands, err := sel.Candidates(context.Background(), &inventory.Item{SKU: "SKU-A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EARLY", "TIE-1", "TIE-2", "LATE", "UNDATED-A", "UNDATED-B"}, lots(cands))
}

func TestCandidates_FiltersIneligible(t *testing.T) {
	expired := batch("EXPIRED", 5, days(-1))
	today := batch("TODAY", 5, days(0))
	empty := batch("EMPTY", 5, days(2))
	empty.AvailableQty = 0
	held := batch("HELD", 5, days(2))
	held.Status = inventory.BatchHold
	ok := batch("OK", 5, days(3))

	sel := NewSelector(&fakeSource{batches: []*inventory.Batch{expired, today, empty, held, ok}},
		WithClock(func() time.Time { return now }))

	cands, err := sel.Candidates(context.Background(), &inventory.Item{SKU: "SKU-A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, lots(cands))
}

func TestCandidates_Rule(t *testing.T) {
	rule, err := CompileRule(`!has_expiry || days_to_expiry >= 3`)
	require.NoError(t, err)

	src := &fakeSource{batches: []*inventory.Batch{
		batch("SHORT", 5, days(2)),
		batch("LONG", 5, days(3)),
		batch("NONE", 5, nil),
	}}
	sel := NewSelector(src, WithRule(rule), WithClock(func() time.Time { return now }))

	cands, err := sel.Candidates(context.Background(), &inventory.Item{SKU: "SKU-A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"LONG", "NONE"}, lots(cands))
}

func TestCandidates_SourceError(t *testing.T) {
	boom := errors.New("boom")
	sel := NewSelector(&fakeSource{err: boom})

	_, err := sel.Candidates(context.Background(), &inventory.Item{})
	assert.ErrorIs(t, err, boom)
}

func TestCompileRule(t *testing.T) {
	r, err := CompileRule("  ")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, "", r.String())

	ok, err := r.Accept(batch("ANY", 1, nil), "SKU", now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = CompileRule("days_to_expiry +")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = CompileRule("days_to_expiry + 1")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	r, err = CompileRule(`sku == "SKU-A" && available > 2.5`)
	require.NoError(t, err)
	ok, err = r.Accept(batch("ANY", 3, nil), "SKU-A", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Accept(batch("ANY", 2, nil), "SKU-A", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlan(t *testing.T) {
	cands := []Candidate{
		{LotNo: "A", Available: types.NewQuantity(50)},
		{LotNo: "B", Available: 0},
		{LotNo: "C", Available: types.NewQuantity(100)},
		{LotNo: "D", Available: types.NewQuantity(75)},
	}

	tests := []struct {
		name      string
		need      int64
		wantQty   []int64
		remaining int64
	}{
		{"first batch covers", 30, []int64{30}, 0},
		{"spans batches", 120, []int64{50, 70}, 0},
		{"exact total", 225, []int64{50, 100, 75}, 0},
		{"short", 300, []int64{50, 100, 75}, 75},
		{"nothing needed", 0, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draws, rem := Plan(cands, types.NewQuantity(tt.need))
			var got []int64
			for _, d := range draws {
				assert.NotEqual(t, "B", d.LotNo)
				got = append(got, d.Qty.Int64Scaled()/types.NewQuantity(1).Int64Scaled())
			}
			assert.Equal(t, tt.wantQty, got)
			assert.Equal(t, types.NewQuantity(tt.remaining), rem)
		})
	}
	assert.Equal(t, types.NewQuantity(225), Total(cands))
}

func TestAfter(t *testing.T) {
	a, b, c := id.New(), id.New(), id.New()
	cands := []Candidate{{BatchID: a}, {BatchID: b}, {BatchID: c}}

	assert.Equal(t, []Candidate{{BatchID: b}, {BatchID: c}}, After(cands, a))
	assert.Empty(t, After(cands, c))
	assert.Nil(t, After(cands, id.New()))
}
