// Package fefo orders an item's eligible batches First-Expiry-First-Out and
// plans how much to draw from each. It never locks or writes; the stock
// ledger re-validates every draw at reservation time.
package fefo

import (
	"context"
	"slices"
	"time"

	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
	"stockalloc/pkg/logger"
)

// Candidate is a snapshot of one eligible batch.
type Candidate struct {
	BatchID    id.ID          `json:"batchId"`
	LotNo      string         `json:"lotNo"`
	ExpiryDate *time.Time     `json:"expiryDate,omitempty"`
	Available  types.Quantity `json:"available"`
}

// Draw is a planned reservation against one candidate.
type Draw struct {
	Candidate
	Qty types.Quantity `json:"qty"`
}

// Source lists eligible batches of an item.
type Source interface {
	ListEligible(ctx context.Context, itemID id.ID, today time.Time) ([]*inventory.Batch, error)
}

// Selector builds candidate lists.
type Selector struct {
	src  Source
	rule *Rule
	now  func() time.Time
}

// Option configures a Selector.
type Option func(*Selector)

// WithRule filters candidates through an eligibility rule.
func WithRule(r *Rule) Option {
	return func(s *Selector) { s.rule = r }
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) { s.now = now }
}

// NewSelector creates a selector reading from src.
func NewSelector(src Source, opts ...Option) *Selector {
	s := &Selector{src: src, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the selector's current time.
func (s *Selector) Now() time.Time {
	return s.now()
}

// Candidates returns the FEFO-ordered candidates for item. The list is
// recomputed on every call.
func (s *Selector) Candidates(ctx context.Context, item *inventory.Item) ([]Candidate, error) {
	now := s.now()
	batches, err := s.src.ListEligible(ctx, item.ID, inventory.DateOf(now))
	if err != nil {
		return nil, err
	}

	eligible := batches[:0:0]
	for _, b := range batches {
		if !b.Eligible(now) {
			continue
		}
		if s.rule != nil {
			ok, err := s.rule.Accept(b, item.SKU, now)
			if err != nil {
				return nil, err
			}
			if !ok {
				logger.Debug(ctx, "batch rejected by eligibility rule", "batch_id", b.ID, "lot_no", b.LotNo)
				continue
			}
		}
		eligible = append(eligible, b)
	}

	Sort(eligible)

	out := make([]Candidate, len(eligible))
	for i, b := range eligible {
		out[i] = Candidate{
			BatchID:    b.ID,
			LotNo:      b.LotNo,
			ExpiryDate: b.ExpiryDate,
			Available:  b.AvailableQty,
		}
	}
	return out, nil
}

// Sort orders batches by expiry ascending with undated batches last, then by
// id (creation order).
func Sort(batches []*inventory.Batch) {
	slices.SortStableFunc(batches, Compare)
}

// Compare is the FEFO ordering of two batches.
func Compare(a, b *inventory.Batch) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if c := a.ExpiryDate.Compare(*b.ExpiryDate); c != 0 {
			return c
		}
	}
	return id.Compare(a.ID, b.ID)
}

// Total sums the available snapshot of all candidates.
func Total(cands []Candidate) types.Quantity {
	var sum types.Quantity
	for _, c := range cands {
		sum += c.Available
	}
	return sum
}

// Plan walks candidates in order and draws min(available, remaining) from
// each until need is met. It returns the draws and the uncovered remainder.
func Plan(cands []Candidate, need types.Quantity) ([]Draw, types.Quantity) {
	var draws []Draw
	remaining := need
	for _, c := range cands {
		if !remaining.IsPositive() {
			break
		}
		if !c.Available.IsPositive() {
			continue
		}
		qty := types.MinQuantity(c.Available, remaining)
		draws = append(draws, Draw{Candidate: c, Qty: qty})
		remaining -= qty
	}
	return draws, remaining
}

// After returns the candidates that follow batchID in cands. It returns nil
// when batchID is not present.
func After(cands []Candidate, batchID id.ID) []Candidate {
	for i, c := range cands {
		if c.BatchID == batchID {
			return cands[i+1:]
		}
	}
	return nil
}
