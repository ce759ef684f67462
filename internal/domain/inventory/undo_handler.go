package inventory

import (
	"context"
	"fmt"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

// ReceiveHandler reverses and replays batch receipts.
type ReceiveHandler struct {
	svc *Service
}

// NewReceiveHandler creates the handler for undo.OpReceive.
func NewReceiveHandler(svc *Service) *ReceiveHandler {
	return &ReceiveHandler{svc: svc}
}

// Undo deletes the received batches. It refuses when any of them has been
// allocated against instead of deallocating implicitly.
func (h *ReceiveHandler) Undo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p receivePayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}

	err := h.svc.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, rb := range p.Batches {
			b, err := h.svc.lockUnused(ctx, rb.BatchID)
			if apperror.IsNotFound(err) {
				return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo receive: Batch %s no longer exists", rb.LotNo))
			}
			if apperror.IsInvalidState(err) {
				return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo receive: Batch %s has active allocations", rb.LotNo))
			}
			if err != nil {
				return err
			}

			entry := txlog.NewEntry(txlog.TypeAdjust, b.ItemID, b.ID, b.ReceivedQty.Neg()).
				WithMeta(txlog.MetaLotNo, b.LotNo).
				WithMeta(txlog.MetaReason, txlog.ReasonUndoReceive)
			if err := h.svc.ledger.Record(ctx, entry); err != nil {
				return err
			}
			if err := h.svc.batches.Delete(ctx, b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	return undo.Outcome{Message: fmt.Sprintf("Undid receive operation: %d batch(es) deleted", len(p.Batches))}, nil
}

// Redo re-creates the batches with their original lot, quantity and expiry.
func (h *ReceiveHandler) Redo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p receivePayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}

	next := receivePayload{Batches: make([]receivedBatch, 0, len(p.Batches))}
	err := h.svc.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, rb := range p.Batches {
			b := NewBatch(rb.ItemID, rb.LotNo, rb.ReceivedQty, rb.ExpiryDate)
			if err := b.Validate(ctx); err != nil {
				return err
			}
			if err := h.svc.batches.Create(ctx, b); err != nil {
				return err
			}
			entry := txlog.NewEntry(txlog.TypeReceipt, b.ItemID, b.ID, b.ReceivedQty).
				WithMeta(txlog.MetaLotNo, b.LotNo).
				WithMeta(txlog.MetaReason, txlog.ReasonRedoReceive)
			if err := h.svc.ledger.Record(ctx, entry); err != nil {
				return err
			}
			next.Batches = append(next.Batches, toReceived(b))
		}
		return nil
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	return undo.Outcome{
		Message: fmt.Sprintf("Redid receive operation: %d batch(es) created", len(next.Batches)),
		Payload: next,
	}, nil
}
