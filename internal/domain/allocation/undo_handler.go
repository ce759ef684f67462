package allocation

import (
	"context"
	"fmt"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

// Handler reverses and replays AllocateOrder calls.
type Handler struct {
	svc *Service
}

// NewHandler creates the handler for undo.OpAllocation.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Undo releases exactly the allocations the recorded call created and puts
// the order back to NEW.
func (h *Handler) Undo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p allocationPayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}
	s := h.svc

	err := s.withOrderLock(ctx, p.OrderID, func(ctx context.Context) error {
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetForUpdate(ctx, p.OrderID)
			if apperror.IsNotFound(err) {
				return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo allocation: order %s no longer exists", p.OrderNo))
			}
			if err != nil {
				return err
			}
			for _, ref := range p.Allocations {
				if _, err := s.allocations.GetByID(ctx, ref.AllocationID); err != nil {
					if apperror.IsNotFound(err) {
						return apperror.NewUndoRedo(fmt.Sprintf(
							"Cannot undo allocation: allocation on batch %s for order %s no longer exists", ref.LotNo, o.OrderNo))
					}
					return err
				}
				if err := s.release(ctx, o, ref, txlog.ReasonUndoAllocation); err != nil {
					return err
				}
			}
			return s.orders.SetStatus(ctx, o.ID, orders.StatusNew)
		})
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	return undo.Outcome{
		Message: fmt.Sprintf("Undid allocation for order %s: %d allocation(s) reversed", p.OrderNo, len(p.Allocations)),
	}, nil
}

// Redo runs AllocateOrder again. With unchanged stock FEFO yields the same
// split; the new allocation ids become the payload of the next undo.
func (h *Handler) Redo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p allocationPayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}
	s := h.svc

	var (
		report  *Report
		created []allocatedRef
	)
	err := s.withOrderLock(ctx, p.OrderID, func(ctx context.Context) error {
		var err error
		report, created, err = s.allocate(ctx, p.OrderID)
		return err
	})
	if err != nil {
		return undo.Outcome{}, err
	}

	return undo.Outcome{
		Message: fmt.Sprintf("Redid allocation for order %s: %d allocation(s) created", report.OrderNo, len(created)),
		Payload: allocationPayload{OrderID: report.OrderID, OrderNo: report.OrderNo, Allocations: created},
	}, nil
}
