// Package ledger owns the only code path that changes a batch's available
// quantity. Every change happens under the batch row lock inside a
// transaction: read, validate, write, commit.
package ledger

import (
	"context"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/tx"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/txlog"
	"stockalloc/pkg/logger"
)

// Repository is the slice of batch storage the ledger needs.
type Repository interface {
	GetForUpdate(ctx context.Context, batchID id.ID) (*inventory.Batch, error)
	SetAvailableQty(ctx context.Context, batchID id.ID, qty types.Quantity) error
}

// Service serializes reservations per batch.
type Service struct {
	txm  tx.Manager
	repo Repository
	log  *txlog.Service
}

// NewService creates a stock ledger.
func NewService(txm tx.Manager, repo Repository, log *txlog.Service) *Service {
	return &Service{txm: txm, repo: repo, log: log}
}

// Reserve decrements available quantity by qty and returns the new value.
// Fails with INVALID_STATE unless the batch is AVAILABLE and with
// INSUFFICIENT_STOCK when less than qty is available.
//
// When ctx carries a transaction the row lock is held until that
// transaction ends.
func (s *Service) Reserve(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	if !qty.IsPositive() {
		return 0, apperror.NewValidation("reserve quantity must be positive").WithDetail("qty", qty.String())
	}

	var newQty types.Quantity
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != inventory.BatchAvailable {
			return apperror.NewInvalidState("batch", b.ID, string(b.Status))
		}
		if b.AvailableQty < qty {
			return apperror.NewInsufficientStock(b.ID.String(), qty.String(), b.AvailableQty.String())
		}
		newQty = b.AvailableQty - qty
		return s.repo.SetAvailableQty(ctx, b.ID, newQty)
	})
	if err != nil {
		return 0, err
	}

	logger.Debug(ctx, "batch reserved", "batch_id", batchID, "qty", qty, "available", newQty)
	return newQty, nil
}

// Release increments available quantity by qty. The batch status is not
// checked; released stock returns to whatever state the batch is in.
func (s *Service) Release(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	if !qty.IsPositive() {
		return 0, apperror.NewValidation("release quantity must be positive").WithDetail("qty", qty.String())
	}
	return s.apply(ctx, batchID, qty)
}

// Adjust applies a signed correction, keeping 0 <= available <= received.
// Unlike Reserve it ignores the batch status.
func (s *Service) Adjust(ctx context.Context, batchID id.ID, delta types.Quantity) (types.Quantity, error) {
	if delta.IsZero() {
		return 0, apperror.NewValidation("adjustment must be non-zero")
	}
	return s.apply(ctx, batchID, delta)
}

func (s *Service) apply(ctx context.Context, batchID id.ID, delta types.Quantity) (types.Quantity, error) {
	var newQty types.Quantity
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		next := b.AvailableQty + delta
		if next.IsNegative() {
			return apperror.NewInsufficientStock(b.ID.String(), delta.Abs().String(), b.AvailableQty.String())
		}
		if next > b.ReceivedQty {
			return apperror.NewValidation("available quantity would exceed received quantity").
				WithDetail("batch_id", b.ID).
				WithDetail("available", b.AvailableQty.String()).
				WithDetail("received", b.ReceivedQty.String()).
				WithDetail("delta", delta.String())
		}
		newQty = next
		return s.repo.SetAvailableQty(ctx, b.ID, newQty)
	})
	if err != nil {
		return 0, err
	}

	logger.Debug(ctx, "batch quantity changed", "batch_id", batchID, "delta", delta, "available", newQty)
	return newQty, nil
}

// --- Standalone operations ---

// ReserveBatch reserves outside any order and records a RESERVE entry.
func (s *Service) ReserveBatch(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	var newQty types.Quantity
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if newQty, err = s.Reserve(ctx, batchID, qty); err != nil {
			return err
		}
		return s.recordManual(ctx, txlog.TypeReserve, batchID, qty.Neg())
	})
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "batch reserved manually", "batch_id", batchID, "qty", qty, "available", newQty)
	return newQty, nil
}

// ReleaseBatch releases outside any order and records a RELEASE entry.
func (s *Service) ReleaseBatch(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	var newQty types.Quantity
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if newQty, err = s.Release(ctx, batchID, qty); err != nil {
			return err
		}
		return s.recordManual(ctx, txlog.TypeRelease, batchID, qty)
	})
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "batch released manually", "batch_id", batchID, "qty", qty, "available", newQty)
	return newQty, nil
}

func (s *Service) recordManual(ctx context.Context, t txlog.Type, batchID id.ID, qty types.Quantity) error {
	b, err := s.repo.GetForUpdate(ctx, batchID)
	if err != nil {
		return err
	}
	entry := txlog.NewEntry(t, b.ItemID, b.ID, qty).
		WithMeta(txlog.MetaLotNo, b.LotNo).
		WithMeta(txlog.MetaReason, txlog.ReasonManual)
	return s.log.Record(ctx, entry)
}
