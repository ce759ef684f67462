// Package expiry marks batches past their expiry date and reports those
// about to expire.
package expiry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"stockalloc/internal/core/tx"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/notify"
	"stockalloc/pkg/logger"
)

var tracer = otel.Tracer("stockalloc/expiry")

// DefaultNearExpiryDays is used when the scanner is created with a
// non-positive window.
const DefaultNearExpiryDays = 7

// Result is returned by Scan.
type Result struct {
	ExpiredCount    int `json:"expired_count"`
	NearExpiryCount int `json:"near_expiry_count"`
}

// Scanner runs the expiry scan.
type Scanner struct {
	txm     tx.Manager
	batches inventory.BatchRepository
	sink    *notify.Sink
	window  int
}

// NewScanner creates a scanner. nearExpiryDays sizes the warning window.
func NewScanner(txm tx.Manager, batches inventory.BatchRepository, sink *notify.Sink, nearExpiryDays int) *Scanner {
	if nearExpiryDays <= 0 {
		nearExpiryDays = DefaultNearExpiryDays
	}
	return &Scanner{txm: txm, batches: batches, sink: sink, window: nearExpiryDays}
}

// Scan expires AVAILABLE batches dated before today and counts those
// expiring within the window starting today.
func (s *Scanner) Scan(ctx context.Context, actor string, now time.Time) (Result, error) {
	ctx, span := tracer.Start(ctx, "expiry.Scan")
	defer span.End()

	today := inventory.DateOf(now)
	var res Result

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		expired, err := s.batches.ListExpiring(ctx, time.Time{}, today)
		if err != nil {
			return err
		}
		for _, b := range expired {
			if err := s.batches.SetStatus(ctx, b.ID, inventory.BatchExpired); err != nil {
				return fmt.Errorf("expire batch %s: %w", b.LotNo, err)
			}
			logger.Debug(ctx, "batch expired", "batch_id", b.ID, "lot_no", b.LotNo, "available", b.AvailableQty)
		}
		res.ExpiredCount = len(expired)

		near, err := s.batches.ListExpiring(ctx, today, today.AddDate(0, 0, s.window))
		if err != nil {
			return err
		}
		res.NearExpiryCount = len(near)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("expiry.expired", res.ExpiredCount),
		attribute.Int("expiry.near", res.NearExpiryCount),
	)
	if res.ExpiredCount > 0 {
		s.sink.Notify(ctx, actor, fmt.Sprintf("%d batch(es) marked as expired", res.ExpiredCount), notify.LevelWarning)
	}
	if res.NearExpiryCount > 0 {
		s.sink.Notify(ctx, actor,
			fmt.Sprintf("%d batch(es) expire within %d days", res.NearExpiryCount, s.window), notify.LevelInfo)
	}
	logger.Info(ctx, "expiry scan finished", "expired", res.ExpiredCount, "near_expiry", res.NearExpiryCount)
	return res, nil
}
