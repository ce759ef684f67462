// Package returns handles customer returns of shipped goods and restocking
// them into their source batch.
package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/entity"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/tx"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/ledger"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/pkg/logger"
	"stockalloc/pkg/numerator"
)

// Status of a return.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRestocked Status = "RESTOCKED"
	StatusRejected  Status = "REJECTED"
)

// Return is a customer return against one shipped order line.
type Return struct {
	entity.BaseEntity
	ReturnNo    string         `db:"return_no" json:"returnNo"`
	OrderID     id.ID          `db:"order_id" json:"orderId"`
	OrderItemID id.ID          `db:"order_item_id" json:"orderItemId"`
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	Qty         types.Quantity `db:"qty" json:"qty"`
	Reason      string         `db:"reason" json:"reason"`
	Status      Status         `db:"status" json:"status"`
	BatchID     *id.ID         `db:"batch_id" json:"batchId,omitempty"`
}

// Filter narrows List.
type Filter struct {
	OrderID *id.ID
	Status  *Status
	domain.Page
}

// Repository persists returns.
type Repository interface {
	Create(ctx context.Context, r *Return) error
	GetByID(ctx context.Context, returnID id.ID) (*Return, error)

	// GetForUpdate is GetByID holding the row lock. Requires a transaction.
	GetForUpdate(ctx context.Context, returnID id.ID) (*Return, error)
	List(ctx context.Context, f Filter) (domain.ListResult[*Return], error)

	// SetStatus updates status and the batch the goods went back into.
	SetStatus(ctx context.Context, returnID id.ID, status Status, batchID *id.ID) error

	// SumOpen totals PENDING and RESTOCKED returns of an order line.
	SumOpen(ctx context.Context, orderItemID id.ID) (types.Quantity, error)
}

// Deps wires the returns service.
type Deps struct {
	TxManager tx.Manager
	Returns   Repository
	Orders    orders.Repository
	Log       *txlog.Service
	Stock     *ledger.Service
	Numerator *numerator.Service
	Undo      *undo.Recorder
	Sink      *notify.Sink
	Now       func() time.Time
}

// Service manages returns.
type Service struct {
	txm       tx.Manager
	returns   Repository
	orders    orders.Repository
	log       *txlog.Service
	stock     *ledger.Service
	numerator *numerator.Service
	undo      *undo.Recorder
	sink      *notify.Sink
	now       func() time.Time
}

// NewService creates a returns service.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		txm:       d.TxManager,
		returns:   d.Returns,
		orders:    d.Orders,
		log:       d.Log,
		stock:     d.Stock,
		numerator: d.Numerator,
		undo:      d.Undo,
		sink:      d.Sink,
		now:       d.Now,
	}
}

// Create opens a PENDING return. The total of open returns for the line
// may not exceed what was shipped.
func (s *Service) Create(ctx context.Context, orderItemID id.ID, qty types.Quantity, reason string) (*Return, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("return quantity must be positive")
	}

	var r *Return
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.orders.GetItem(ctx, orderItemID)
		if err != nil {
			return err
		}
		open, err := s.returns.SumOpen(ctx, orderItemID)
		if err != nil {
			return err
		}
		if open+qty > line.QtyShipped {
			return apperror.NewValidation("return quantity exceeds shipped quantity").
				WithDetail("shipped", line.QtyShipped.String()).
				WithDetail("already_returned", open.String()).
				WithDetail("requested", qty.String())
		}

		no, err := s.numerator.Next(ctx, "RET", s.now())
		if err != nil {
			return fmt.Errorf("generate return number: %w", err)
		}
		r = &Return{
			BaseEntity:  entity.NewBaseEntity(),
			ReturnNo:    no,
			OrderID:     line.OrderID,
			OrderItemID: line.ID,
			ItemID:      line.ItemID,
			Qty:         qty,
			Reason:      strings.TrimSpace(reason),
			Status:      StatusPending,
		}
		return s.returns.Create(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "return created", "return_id", r.ID, "return_no", r.ReturnNo, "qty", r.Qty)
	return r, nil
}

// Get returns one return.
func (s *Service) Get(ctx context.Context, returnID id.ID) (*Return, error) {
	return s.returns.GetByID(ctx, returnID)
}

// List lists returns.
func (s *Service) List(ctx context.Context, f Filter) (domain.ListResult[*Return], error) {
	f.Page = f.Page.Normalize()
	return s.returns.List(ctx, f)
}

// restockPayload is the undo record of a restock.
type restockPayload struct {
	ReturnID id.ID          `json:"return_id"`
	ReturnNo string         `json:"return_no"`
	ItemID   id.ID          `json:"item_id"`
	Splits   []restockSplit `json:"splits"`
}

// restockSplit is the part of a return put back into one batch.
type restockSplit struct {
	BatchID id.ID          `json:"batch_id"`
	LotNo   string         `json:"lot_no,omitempty"`
	Qty     types.Quantity `json:"qty"`
}

func newRestockPayload(r *Return, splits []restockSplit) restockPayload {
	return restockPayload{ReturnID: r.ID, ReturnNo: r.ReturnNo, ItemID: r.ItemID, Splits: splits}
}

// Restock puts a PENDING return back into the batches it was shipped from,
// earliest shipment first, never more into a batch than left it for this
// line. The return keeps the first of those batches.
func (s *Service) Restock(ctx context.Context, returnID id.ID) (*Return, error) {
	var (
		r       *Return
		payload restockPayload
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var (
			splits []restockSplit
			err    error
		)
		r, splits, err = s.restock(ctx, returnID)
		if err != nil {
			return err
		}
		payload = newRestockPayload(r, splits)
		return s.undo.Push(ctx, undo.OpRestock, payload, fmt.Sprintf("Restock return %s (%s)", r.ReturnNo, r.Qty))
	})
	if err != nil {
		return nil, err
	}

	s.publishAdjusted(ctx, payload, txlog.ReasonReturnRestock)
	logger.Info(ctx, "return restocked", "return_id", r.ID, "batches", len(payload.Splits), "qty", r.Qty)
	return r, nil
}

func (s *Service) restock(ctx context.Context, returnID id.ID) (*Return, []restockSplit, error) {
	r, err := s.returns.GetForUpdate(ctx, returnID)
	if err != nil {
		return nil, nil, err
	}
	if r.Status != StatusPending {
		return nil, nil, apperror.NewInvalidState("return", r.ID, string(r.Status))
	}

	splits, err := s.splitRestock(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	for _, sp := range splits {
		if _, err := s.stock.Adjust(ctx, sp.BatchID, sp.Qty); err != nil {
			return nil, nil, err
		}
		entry := txlog.NewEntry(txlog.TypeAdjust, r.ItemID, sp.BatchID, sp.Qty).
			ForOrder(r.OrderID, r.OrderItemID).
			WithMeta(txlog.MetaReason, txlog.ReasonReturnRestock).
			WithMeta(txlog.MetaLotNo, sp.LotNo).
			WithMeta("return_no", r.ReturnNo)
		if err := s.log.Record(ctx, entry); err != nil {
			return nil, nil, err
		}
	}

	batchID := splits[0].BatchID
	if err := s.returns.SetStatus(ctx, r.ID, StatusRestocked, &batchID); err != nil {
		return nil, nil, err
	}
	r.Status = StatusRestocked
	r.BatchID = &batchID
	return r, splits, nil
}

// splitRestock spreads the return over the batches the line shipped from.
// What a batch can take back is what shipped from it, less what earlier
// restocks of the line already put back.
func (s *Service) splitRestock(ctx context.Context, r *Return) ([]restockSplit, error) {
	orderItemID := r.OrderItemID
	page, err := s.log.List(ctx, txlog.Filter{
		OrderItemID: &orderItemID,
		Types:       []txlog.Type{txlog.TypeShip, txlog.TypeAdjust},
		Page:        domain.Page{Limit: domain.MaxLimit},
	})
	if err != nil {
		return nil, err
	}

	var order []id.ID
	returnable := make(map[id.ID]types.Quantity)
	lots := make(map[id.ID]string)
	// newest first: walk backwards to see shipments in the order they left
	for i := len(page.Items) - 1; i >= 0; i-- {
		e := page.Items[i]
		if e.BatchID == nil {
			continue
		}
		switch {
		case e.Type == txlog.TypeShip:
		case e.Reason() == txlog.ReasonReturnRestock, e.Reason() == txlog.ReasonUndoRestock:
		default:
			continue
		}
		b := *e.BatchID
		if _, ok := returnable[b]; !ok {
			order = append(order, b)
		}
		// SHIP entries are negative and restocks positive, so both subtract
		returnable[b] -= e.Qty
		if lot, ok := e.Meta[txlog.MetaLotNo].(string); ok && lot != "" {
			lots[b] = lot
		}
	}

	var splits []restockSplit
	remaining := r.Qty
	for _, b := range order {
		if !remaining.IsPositive() {
			break
		}
		if !returnable[b].IsPositive() {
			continue
		}
		q := types.MinQuantity(returnable[b], remaining)
		splits = append(splits, restockSplit{BatchID: b, LotNo: lots[b], Qty: q})
		remaining -= q
	}
	if len(splits) == 0 || remaining.IsPositive() {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "No original shipment found for restock").
			WithDetail("order_item_id", r.OrderItemID).
			WithDetail("unplaced", remaining.String())
	}
	return splits, nil
}

// Reject closes a PENDING return without restocking.
func (s *Service) Reject(ctx context.Context, returnID id.ID) (*Return, error) {
	var r *Return
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.returns.GetForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return apperror.NewInvalidState("return", r.ID, string(r.Status))
		}
		if err := s.returns.SetStatus(ctx, r.ID, StatusRejected, nil); err != nil {
			return err
		}
		r.Status = StatusRejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "return rejected", "return_id", r.ID)
	return r, nil
}

func (s *Service) publishAdjusted(ctx context.Context, p restockPayload, reason string) {
	for _, sp := range p.Splits {
		s.sink.Publish(ctx, notify.Event{
			Type:          notify.EventInventoryAdjusted,
			AggregateType: "batch",
			AggregateID:   sp.BatchID,
			Data: map[string]any{
				"batch_id":  sp.BatchID,
				"item_id":   p.ItemID,
				"qty":       sp.Qty,
				"return_no": p.ReturnNo,
				"reason":    reason,
			},
		})
	}
}

// RestockHandler reverses and replays restocks.
type RestockHandler struct {
	svc *Service
}

// NewRestockHandler creates the handler for undo.OpRestock.
func NewRestockHandler(svc *Service) *RestockHandler {
	return &RestockHandler{svc: svc}
}

// Undo removes the restocked quantity and puts the return back to PENDING.
// It fails when the stock has meanwhile been reserved again.
func (h *RestockHandler) Undo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p restockPayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}
	s := h.svc

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		r, err := s.returns.GetForUpdate(ctx, p.ReturnID)
		if err != nil {
			return err
		}
		if r.Status != StatusRestocked {
			return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo restock: return %s is %s", r.ReturnNo, r.Status))
		}
		for _, sp := range p.Splits {
			if _, err := s.stock.Adjust(ctx, sp.BatchID, sp.Qty.Neg()); err != nil {
				if apperror.IsInsufficientStock(err) {
					return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo restock: stock from return %s was already allocated", r.ReturnNo))
				}
				return err
			}
			entry := txlog.NewEntry(txlog.TypeAdjust, p.ItemID, sp.BatchID, sp.Qty.Neg()).
				ForOrder(r.OrderID, r.OrderItemID).
				WithMeta(txlog.MetaReason, txlog.ReasonUndoRestock).
				WithMeta(txlog.MetaLotNo, sp.LotNo).
				WithMeta("return_no", r.ReturnNo)
			if err := s.log.Record(ctx, entry); err != nil {
				return err
			}
		}
		return s.returns.SetStatus(ctx, r.ID, StatusPending, nil)
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	s.publishAdjusted(ctx, p, txlog.ReasonUndoRestock)
	return undo.Outcome{Message: fmt.Sprintf("Undid restock from return %s", p.ReturnNo)}, nil
}

// Redo restocks the return again.
func (h *RestockHandler) Redo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p restockPayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}
	var (
		r      *Return
		splits []restockSplit
	)
	err := h.svc.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, splits, err = h.svc.restock(ctx, p.ReturnID)
		return err
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	payload := newRestockPayload(r, splits)
	h.svc.publishAdjusted(ctx, payload, txlog.ReasonReturnRestock)
	return undo.Outcome{
		Message: fmt.Sprintf("Redid restock from return %s", r.ReturnNo),
		Payload: payload,
	}, nil
}
