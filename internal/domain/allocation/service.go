package allocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockalloc/internal/core/apperror"
	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/lock"
	"stockalloc/internal/core/tx"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/fefo"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/ledger"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/pkg/logger"
)

var tracer = otel.Tracer("stockalloc/allocation")

// Deps wires the orchestrator.
type Deps struct {
	TxManager   tx.Manager
	Orders      orders.Repository
	Allocations orders.AllocationRepository
	Workflow    *orders.Service
	Items       inventory.ItemRepository
	Selector    *fefo.Selector
	Stock       *ledger.Service
	Log         *txlog.Service
	Undo        *undo.Recorder
	Sink        *notify.Sink
	Locker      lock.Locker
	LockTTL     time.Duration

	// AllowPartialLines keeps whatever a line managed to reserve instead
	// of releasing it when the line cannot be covered in full.
	AllowPartialLines bool
}

// Service is the order allocation orchestrator.
type Service struct {
	txm          tx.Manager
	orders       orders.Repository
	allocations  orders.AllocationRepository
	workflow     *orders.Service
	items        inventory.ItemRepository
	selector     *fefo.Selector
	stock        *ledger.Service
	log          *txlog.Service
	undo         *undo.Recorder
	sink         *notify.Sink
	locker       lock.Locker
	lockTTL      time.Duration
	allowPartial bool

	queue pendingQueue
}

// pendingQueue is the AllocatePending position and the last outcome seen
// for each order still waiting for stock.
type pendingQueue struct {
	mu       sync.Mutex
	cursor   id.ID
	outcomes map[id.ID]pendingOutcome
}

type pendingOutcome struct {
	outcome   Outcome
	fullLines int
}

// NewService creates the orchestrator.
func NewService(d Deps) *Service {
	if d.LockTTL <= 0 {
		d.LockTTL = 30 * time.Second
	}
	return &Service{
		txm:          d.TxManager,
		orders:       d.Orders,
		allocations:  d.Allocations,
		workflow:     d.Workflow,
		items:        d.Items,
		selector:     d.Selector,
		stock:        d.Stock,
		log:          d.Log,
		undo:         d.Undo,
		sink:         d.Sink,
		locker:       d.Locker,
		lockTTL:      d.LockTTL,
		allowPartial: d.AllowPartialLines,
		queue:        pendingQueue{outcomes: make(map[id.ID]pendingOutcome)},
	}
}

type quietShortfallKey struct{}

// withQuietShortfall suppresses the partial and failed notifications of
// allocate; the caller reports them itself.
func withQuietShortfall(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietShortfallKey{}, true)
}

func quietShortfall(ctx context.Context) bool {
	v, _ := ctx.Value(quietShortfallKey{}).(bool)
	return v
}

func failedMessage(r *Report) string {
	return fmt.Sprintf("Allocation failed for order %s: insufficient stock", r.OrderNo)
}

func partialMessage(r *Report, full int) string {
	return fmt.Sprintf("Order %s partially allocated: %d of %d line(s) fully allocated", r.OrderNo, full, len(r.Lines))
}

func (s *Service) withOrderLock(ctx context.Context, orderID id.ID, fn func(ctx context.Context) error) error {
	return lock.Do(ctx, s.locker, lock.OrderKey(orderID.String()), s.lockTTL, fn)
}

// allocationPayload is the undo record of one AllocateOrder call.
type allocationPayload struct {
	OrderID     id.ID          `json:"order_id"`
	OrderNo     string         `json:"order_no"`
	Allocations []allocatedRef `json:"allocations"`
}

type allocatedRef struct {
	AllocationID id.ID          `json:"allocation_id"`
	OrderItemID  id.ID          `json:"order_item_id"`
	ItemID       id.ID          `json:"item_id"`
	BatchID      id.ID          `json:"batch_id"`
	LotNo        string         `json:"lot_no"`
	Qty          types.Quantity `json:"qty_allocated"`
}

// AllocateOrder allocates every line of an order from FEFO-ordered batches.
//
// Each reservation is its own short transaction: batch decrement, allocation
// row, line counter and RESERVE entry commit together or not at all. Lines
// are processed in line order. When every line fails, the reservations made
// by this call are released and an ALLOCATION_FAILED error is returned
// together with the report.
func (s *Service) AllocateOrder(ctx context.Context, orderID id.ID) (*Report, error) {
	ctx, span := tracer.Start(ctx, "allocation.AllocateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	var (
		report  *Report
		created []allocatedRef
	)
	err := s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		var err error
		report, created, err = s.allocate(ctx, orderID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	span.SetAttributes(attribute.String("allocation.outcome", string(report.Outcome)))

	if len(created) > 0 {
		payload := allocationPayload{OrderID: report.OrderID, OrderNo: report.OrderNo, Allocations: created}
		desc := fmt.Sprintf("Allocate order %s (%d allocation(s))", report.OrderNo, len(created))
		if err := s.undo.Push(ctx, undo.OpAllocation, payload, desc); err != nil {
			logger.Error(ctx, "record allocation for undo", "order_id", orderID, "error", err)
		}
	}
	return report, nil
}

func (s *Service) allocate(ctx context.Context, orderID id.ID) (*Report, []allocatedRef, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if apperror.IsNotFound(err) {
		return nil, nil, apperror.NewOrderNotFound(orderID)
	}
	if err != nil {
		return nil, nil, err
	}

	switch o.Status {
	case orders.StatusNew, orders.StatusAllocated:
	case orders.StatusCancelled:
		return nil, nil, apperror.NewAllocation("Cannot allocate cancelled order").
			WithDetail("order_no", o.OrderNo)
	default:
		return nil, nil, apperror.NewAllocation(fmt.Sprintf("Cannot allocate order in status %s", o.Status)).
			WithDetail("order_no", o.OrderNo)
	}
	if len(o.Items) == 0 {
		return nil, nil, apperror.NewAllocation("Order has no line items").
			WithDetail("order_no", o.OrderNo)
	}

	report := &Report{OrderID: o.ID, OrderNo: o.OrderNo, Status: o.Status}
	var created []allocatedRef

	for _, line := range o.Items {
		lr, refs, err := s.allocateLine(ctx, o, line)
		created = append(created, refs...)
		if err != nil {
			// Reservations already committed stay; Reconcile repairs counters.
			logger.Error(ctx, "allocation aborted", "order_id", o.ID, "order_item_id", line.ID, "error", err)
			return nil, nil, err
		}
		report.Lines = append(report.Lines, lr)
	}

	full, failed := report.counts()
	actor := appctx.ActorName(ctx)

	switch {
	case full == len(report.Lines):
		report.Outcome = OutcomeFull
		if o.Status != orders.StatusAllocated {
			if err := s.orders.SetStatus(ctx, o.ID, orders.StatusAllocated); err != nil {
				return nil, nil, err
			}
		}
		report.Status = orders.StatusAllocated
		logger.Info(ctx, "order allocated", "order_id", o.ID, "order_no", o.OrderNo, "allocations", len(created))
		s.sink.Notify(ctx, actor, fmt.Sprintf("Order %s fully allocated", o.OrderNo), notify.LevelInfo)
		s.sink.Publish(ctx, notify.Event{
			Type:          notify.EventOrderAllocated,
			AggregateType: "order",
			AggregateID:   o.ID,
			Data:          report,
		})
		return report, created, nil

	case failed == len(report.Lines):
		if err := s.rollback(ctx, o, created, txlog.ReasonOrderRollback); err != nil {
			return nil, nil, err
		}
		for i := range report.Lines {
			report.Lines[i].Allocations = nil
		}
		report.Outcome = OutcomeFailed
		logger.Warn(ctx, "order allocation failed", "order_id", o.ID, "order_no", o.OrderNo)
		if !quietShortfall(ctx) {
			s.sink.Notify(ctx, actor, failedMessage(report), notify.LevelError)
		}
		return report, nil, apperror.NewAllocation(fmt.Sprintf("Unable to allocate any line of order %s", o.OrderNo)).
			WithDetail("order_no", o.OrderNo).
			WithDetail("report", report)

	default:
		report.Outcome = OutcomePartial
		logger.Warn(ctx, "order partially allocated",
			"order_id", o.ID,
			"order_no", o.OrderNo,
			"full_lines", full,
			"lines", len(report.Lines),
		)
		if !quietShortfall(ctx) {
			s.sink.Notify(ctx, actor, partialMessage(report, full), notify.LevelWarning)
		}
		return report, created, nil
	}
}

// allocateLine walks the FEFO candidates of one line. Refs of reservations
// that remain in place are returned even when err is non-nil.
func (s *Service) allocateLine(ctx context.Context, o *orders.Order, line *orders.OrderItem) (LineReport, []allocatedRef, error) {
	lr := LineReport{
		OrderItemID:  line.ID,
		ItemID:       line.ItemID,
		ItemSKU:      line.SKU,
		QtyRequested: line.QtyRequested,
		QtyAllocated: line.QtyAllocated,
		QtyRemaining: line.Remaining(),
	}

	need := line.Remaining()
	if !need.IsPositive() {
		lr.Status = LineFullyAllocated
		lr.QtyRemaining = 0
		return lr, nil, nil
	}

	item, err := s.items.GetByID(ctx, line.ItemID)
	if err != nil {
		return lr, nil, err
	}
	lr.ItemSKU = item.SKU

	cands, err := s.selector.Candidates(ctx, item)
	if err != nil {
		return lr, nil, err
	}

	if len(cands) == 0 || (!s.allowPartial && fefo.Total(cands) < need) {
		lr.Reason = ReasonInsufficientStock
		if len(cands) == 0 {
			lr.Reason = ReasonNoCandidates
		}
		lr.Status = classify(lr)
		logger.Debug(ctx, "line short before reservation",
			"order_item_id", line.ID, "sku", item.SKU, "need", need, "candidates", len(cands))
		return lr, nil, nil
	}

	// Every draw but the last takes its whole candidate, so after a skipped
	// draw the plan is redone from the candidates behind it.
	var refs []allocatedRef
	remaining := need
	rest := cands
	for remaining.IsPositive() {
		draws, _ := fefo.Plan(rest, remaining)
		skipped := false
		for _, d := range draws {
			a, err := s.reserve(ctx, o, line, d.Candidate, d.Qty)
			if apperror.IsInsufficientStock(err) || apperror.IsInvalidState(err) {
				logger.Debug(ctx, "candidate skipped", "batch_id", d.BatchID, "lot_no", d.LotNo, "qty", d.Qty, "error", err)
				rest = fefo.After(rest, d.BatchID)
				skipped = true
				break
			}
			if err != nil {
				return lr, refs, err
			}

			remaining -= d.Qty
			refs = append(refs, allocatedRef{
				AllocationID: a.ID,
				OrderItemID:  line.ID,
				ItemID:       line.ItemID,
				BatchID:      d.BatchID,
				LotNo:        d.LotNo,
				Qty:          d.Qty,
			})
		}
		if !skipped {
			break
		}
	}

	if remaining.IsPositive() && !s.allowPartial && len(refs) > 0 {
		logger.Debug(ctx, "line lost stock to a concurrent allocation, releasing",
			"order_item_id", line.ID, "short", remaining, "reservations", len(refs))
		if err := s.rollback(ctx, o, refs, txlog.ReasonLineRollback); err != nil {
			return lr, refs, err
		}
		refs = nil
		remaining = need
		lr.Reason = ReasonRaceLost
	} else if remaining.IsPositive() {
		lr.Reason = ReasonInsufficientStock
	}

	for _, r := range refs {
		lr.Allocations = append(lr.Allocations, BatchDraw{
			AllocationID: r.AllocationID,
			BatchID:      r.BatchID,
			BatchLot:     r.LotNo,
			Qty:          r.Qty,
		})
	}
	lr.QtyRemaining = remaining
	lr.QtyAllocated = line.QtyRequested - remaining
	lr.Status = classify(lr)
	return lr, refs, nil
}

func classify(lr LineReport) LineStatus {
	switch {
	case !lr.QtyRemaining.IsPositive():
		return LineFullyAllocated
	case lr.QtyAllocated.IsPositive():
		return LinePartiallyAllocated
	default:
		return LineAllocationFailed
	}
}

// reserve is the atomic unit for one candidate.
func (s *Service) reserve(ctx context.Context, o *orders.Order, line *orders.OrderItem, c fefo.Candidate, qty types.Quantity) (*orders.Allocation, error) {
	var a *orders.Allocation
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.stock.Reserve(ctx, c.BatchID, qty); err != nil {
			return err
		}
		a = orders.NewAllocation(o.ID, line.ID, c.BatchID, qty)
		a.LotNo = c.LotNo
		if err := s.allocations.Create(ctx, a); err != nil {
			return err
		}
		if err := s.orders.AddAllocated(ctx, line.ID, qty); err != nil {
			return err
		}
		entry := txlog.NewEntry(txlog.TypeReserve, line.ItemID, c.BatchID, qty.Neg()).
			ForOrder(o.ID, line.ID).
			WithMeta(txlog.MetaOrderNo, o.OrderNo).
			WithMeta(txlog.MetaLotNo, c.LotNo)
		return s.log.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// release returns one allocation to stock: batch increment, allocation
// delete, line counter decrement and DEALLOCATE entry in one transaction.
func (s *Service) release(ctx context.Context, o *orders.Order, ref allocatedRef, reason string) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.stock.Release(ctx, ref.BatchID, ref.Qty); err != nil {
			return err
		}
		if err := s.allocations.Delete(ctx, ref.AllocationID); err != nil {
			return err
		}
		if err := s.orders.AddAllocated(ctx, ref.OrderItemID, ref.Qty.Neg()); err != nil {
			return err
		}
		entry := txlog.NewEntry(txlog.TypeDeallocate, ref.ItemID, ref.BatchID, ref.Qty).
			ForOrder(o.ID, ref.OrderItemID).
			WithMeta(txlog.MetaOrderNo, o.OrderNo).
			WithMeta(txlog.MetaLotNo, ref.LotNo).
			WithMeta(txlog.MetaReason, reason)
		return s.log.Record(ctx, entry)
	})
}

// rollback releases refs in reverse order of creation.
func (s *Service) rollback(ctx context.Context, o *orders.Order, refs []allocatedRef, reason string) error {
	for i := len(refs) - 1; i >= 0; i-- {
		if err := s.release(ctx, o, refs[i], reason); err != nil {
			logger.Error(ctx, "rollback of reservation failed",
				"order_id", o.ID, "allocation_id", refs[i].AllocationID, "error", err)
			return fmt.Errorf("release allocation %s: %w", refs[i].AllocationID, err)
		}
	}
	return nil
}

// DeallocateOrder releases every allocation of an order in one transaction,
// zeroes the line counters and resets the order to NEW.
func (s *Service) DeallocateOrder(ctx context.Context, orderID id.ID) (*ReleaseReport, error) {
	ctx, span := tracer.Start(ctx, "allocation.DeallocateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	var rep *ReleaseReport
	err := s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetForUpdate(ctx, orderID)
			if apperror.IsNotFound(err) {
				return apperror.NewOrderNotFound(orderID)
			}
			if err != nil {
				return err
			}
			if !o.Status.HoldsStock() {
				return apperror.NewInvalidState("order", o.ID, string(o.Status))
			}

			allocs, err := s.allocations.ListByOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			rep = &ReleaseReport{OrderID: o.ID, OrderNo: o.OrderNo, Status: orders.StatusNew}
			for _, a := range allocs {
				line := o.Item(a.OrderItemID)
				if line == nil {
					return fmt.Errorf("allocation %s references unknown line %s", a.ID, a.OrderItemID)
				}
				ref := refOf(a, line.ItemID)
				if err := s.release(ctx, o, ref, txlog.ReasonDeallocate); err != nil {
					return err
				}
				rep.Released = append(rep.Released, ReleasedAllocation{
					AllocationID: a.ID,
					OrderItemID:  a.OrderItemID,
					BatchID:      a.BatchID,
					BatchLot:     a.LotNo,
					Qty:          a.Qty,
				})
				rep.TotalQty += a.Qty
			}
			for _, line := range o.Items {
				if err := s.orders.SetAllocated(ctx, line.ID, 0); err != nil {
					return err
				}
			}
			return s.orders.SetStatus(ctx, o.ID, orders.StatusNew)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Info(ctx, "order deallocated", "order_id", orderID, "released", len(rep.Released), "qty", rep.TotalQty)
	return rep, nil
}

// CancelOrder releases whatever the order holds and cancels it. Both steps
// commit together.
func (s *Service) CancelOrder(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	var out *orders.Order
	err := s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if apperror.IsNotFound(err) {
			return apperror.NewOrderNotFound(orderID)
		}
		if err != nil {
			return err
		}
		allocs, err := s.allocations.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			if len(allocs) > 0 || o.Status == orders.StatusAllocated {
				if _, err := s.DeallocateOrder(ctx, o.ID); err != nil {
					return err
				}
			}
			out, err = s.workflow.Cancel(ctx, o.ID)
			return err
		})
	})
	return out, err
}

// AllocatePending allocates up to limit NEW orders. Each call continues
// after the last order the previous call tried and wraps around to the
// oldest, so orders that cannot be filled never starve the ones behind them.
// Shortfall notifications are only raised when an order's outcome changes.
func (s *Service) AllocatePending(ctx context.Context, limit int) (*PendingReport, error) {
	ctx, span := tracer.Start(ctx, "allocation.AllocatePending")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	ids, err := s.nextPending(ctx, limit)
	if err != nil {
		return nil, err
	}

	rep := &PendingReport{}
	quiet := withQuietShortfall(ctx)
	for _, orderID := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		s.queue.mu.Lock()
		s.queue.cursor = orderID
		s.queue.mu.Unlock()

		rep.Processed++
		r, err := s.AllocateOrder(quiet, orderID)
		res := PendingResult{OrderID: orderID, Report: r}
		switch {
		case err != nil:
			rep.Failed++
			res.Error = err.Error()
			if appErr, ok := apperror.AsAppError(err); ok {
				res.Error = appErr.Message
			}
		case r.Outcome == OutcomeFull:
			rep.Allocated++
		default:
			rep.Partial++
		}
		s.noteOutcome(ctx, orderID, r)
		rep.Results = append(rep.Results, res)
	}

	span.SetAttributes(
		attribute.Int("pending.processed", rep.Processed),
		attribute.Int("pending.allocated", rep.Allocated),
	)
	logger.Info(ctx, "pending orders processed",
		"processed", rep.Processed,
		"allocated", rep.Allocated,
		"partial", rep.Partial,
		"failed", rep.Failed,
	)
	return rep, nil
}

// nextPending reads the next page of NEW orders after the cursor, topped up
// from the oldest order when the page runs past the newest one.
func (s *Service) nextPending(ctx context.Context, limit int) ([]id.ID, error) {
	s.queue.mu.Lock()
	after := s.queue.cursor
	s.queue.mu.Unlock()

	ids, err := s.orders.ListIDsAfter(ctx, orders.StatusNew, after, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == limit || after == id.Nil() {
		return ids, nil
	}

	head, err := s.orders.ListIDsAfter(ctx, orders.StatusNew, id.Nil(), limit-len(ids))
	if err != nil {
		return nil, err
	}
	for _, orderID := range head {
		if id.Compare(orderID, after) > 0 {
			break
		}
		ids = append(ids, orderID)
	}
	return ids, nil
}

// noteOutcome notifies about a partial or failed queued order unless the
// previous attempt ended the same way.
func (s *Service) noteOutcome(ctx context.Context, orderID id.ID, r *Report) {
	if r == nil {
		return
	}
	full, _ := r.counts()
	cur := pendingOutcome{outcome: r.Outcome, fullLines: full}

	s.queue.mu.Lock()
	prev, seen := s.queue.outcomes[orderID]
	if r.Outcome == OutcomeFull {
		delete(s.queue.outcomes, orderID)
	} else {
		s.queue.outcomes[orderID] = cur
	}
	s.queue.mu.Unlock()

	if r.Outcome == OutcomeFull || (seen && prev == cur) {
		return
	}
	actor := appctx.ActorName(ctx)
	switch r.Outcome {
	case OutcomeFailed:
		s.sink.Notify(ctx, actor, failedMessage(r), notify.LevelError)
	case OutcomePartial:
		s.sink.Notify(ctx, actor, partialMessage(r, full), notify.LevelWarning)
	}
}

// Reconcile recomputes every line's qty_allocated from its allocation rows
// and realigns NEW/ALLOCATED status with the result.
func (s *Service) Reconcile(ctx context.Context, orderID id.ID) (*ReconcileReport, error) {
	var rep *ReconcileReport
	err := s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetForUpdate(ctx, orderID)
			if apperror.IsNotFound(err) {
				return apperror.NewOrderNotFound(orderID)
			}
			if err != nil {
				return err
			}
			rep = &ReconcileReport{OrderID: o.ID, StatusWas: o.Status, StatusNow: o.Status}
			if !o.Status.HoldsStock() {
				return nil
			}

			sums, err := s.allocations.SumByOrderItem(ctx, o.ID)
			if err != nil {
				return err
			}
			for _, line := range o.Items {
				want := sums[line.ID]
				if line.QtyAllocated == want {
					continue
				}
				if err := s.orders.SetAllocated(ctx, line.ID, want); err != nil {
					return err
				}
				rep.Fixed = append(rep.Fixed, LineFix{OrderItemID: line.ID, Was: line.QtyAllocated, Now: want})
				line.QtyAllocated = want
			}

			next := o.Status
			switch {
			case o.Status == orders.StatusNew && o.FullyAllocated():
				next = orders.StatusAllocated
			case o.Status == orders.StatusAllocated && !o.FullyAllocated():
				next = orders.StatusNew
			}
			if next != o.Status {
				if err := s.orders.SetStatus(ctx, o.ID, next); err != nil {
					return err
				}
				rep.StatusNow = next
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(rep.Fixed) > 0 || rep.StatusNow != rep.StatusWas {
		logger.Warn(ctx, "order counters reconciled",
			"order_id", orderID, "lines_fixed", len(rep.Fixed), "status_was", rep.StatusWas, "status_now", rep.StatusNow)
	}
	return rep, nil
}

// ReconcileAll reconciles every order that may hold allocations and returns
// the reports that changed something.
func (s *Service) ReconcileAll(ctx context.Context) ([]*ReconcileReport, error) {
	ids, err := s.orders.ListIDsByStatus(ctx, []orders.Status{
		orders.StatusNew, orders.StatusAllocated, orders.StatusPicked, orders.StatusPacked,
	}, 0)
	if err != nil {
		return nil, err
	}

	var changed []*ReconcileReport
	for _, orderID := range ids {
		rep, err := s.Reconcile(ctx, orderID)
		if err != nil {
			return changed, fmt.Errorf("reconcile order %s: %w", orderID, err)
		}
		if len(rep.Fixed) > 0 || rep.StatusNow != rep.StatusWas {
			changed = append(changed, rep)
		}
	}
	logger.Info(ctx, "reconciliation finished", "orders", len(ids), "changed", len(changed))
	return changed, nil
}

func refOf(a *orders.Allocation, itemID id.ID) allocatedRef {
	return allocatedRef{
		AllocationID: a.ID,
		OrderItemID:  a.OrderItemID,
		ItemID:       itemID,
		BatchID:      a.BatchID,
		LotNo:        a.LotNo,
		Qty:          a.Qty,
	}
}
