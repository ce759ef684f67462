package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stockalloc/internal/core/apperror"
	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/pkg/logger"
)

// ShipInput describes a shipment request.
type ShipInput struct {
	Carrier string
	Notes   string
}

// Consumption is stock that left with a shipment.
type Consumption struct {
	AllocationID id.ID          `json:"allocation_id"`
	OrderItemID  id.ID          `json:"order_item_id"`
	BatchID      id.ID          `json:"batch_id"`
	ItemID       id.ID          `json:"item_id"`
	LotNo        string         `json:"lot_no,omitempty"`
	Qty          types.Quantity `json:"qty_consumed"`
}

// ShipResult is returned by Ship.
type ShipResult struct {
	Shipment     *Shipment     `json:"shipment"`
	Order        *Order        `json:"order"`
	Consumptions []Consumption `json:"consumptions"`
}

// shipPayload is the undo record of a shipment.
type shipPayload struct {
	OrderID      id.ID         `json:"order_id"`
	ShipmentID   id.ID         `json:"shipment_id"`
	PrevStatus   Status        `json:"prev_status"`
	Carrier      string        `json:"carrier,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Consumptions []Consumption `json:"consumptions"`
}

// Ship turns the order's allocations into a shipment. Batch quantities are
// not touched: they were decremented when the stock was reserved.
func (s *Service) Ship(ctx context.Context, orderID id.ID, in ShipInput) (*ShipResult, error) {
	var res *ShipResult
	err := s.WithOrderLock(ctx, orderID, func(ctx context.Context) error {
		var err error
		res, err = s.ship(ctx, orderID, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterShip(ctx, res)
	logger.Info(ctx, "order shipped",
		"order_id", res.Order.ID,
		"order_no", res.Order.OrderNo,
		"shipment_no", res.Shipment.ShipmentNo,
		"consumptions", len(res.Consumptions),
	)
	return res, nil
}

func (s *Service) ship(ctx context.Context, orderID id.ID, in ShipInput) (*ShipResult, error) {
	var res *ShipResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if apperror.IsNotFound(err) {
			return apperror.NewOrderNotFound(orderID)
		}
		if err != nil {
			return err
		}
		if !o.Status.Shippable() {
			return apperror.NewInvalidState("order", o.ID, string(o.Status))
		}

		allocs, err := s.allocations.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(allocs) == 0 {
			return apperror.NewInvalidState("order", o.ID, string(o.Status)).
				WithDetail("reason", "order has no allocations to ship")
		}

		now := s.now().UTC()
		sh := &Shipment{
			ID:         id.New(),
			ShipmentNo: fmt.Sprintf("SHIP-%s-%s", o.OrderNo, now.Format("20060102150405")),
			OrderID:    o.ID,
			Carrier:    strings.TrimSpace(in.Carrier),
			TrackingNo: strings.ToUpper(uuid.NewString()),
			Notes:      in.Notes,
			Actor:      appctx.ActorName(ctx),
			ShippedAt:  now,
		}
		if err := s.shipments.Create(ctx, sh); err != nil {
			return err
		}

		consumptions := make([]Consumption, 0, len(allocs))
		entries := make([]*txlog.Entry, 0, len(allocs))
		for _, a := range allocs {
			line := o.Item(a.OrderItemID)
			if line == nil {
				return fmt.Errorf("allocation %s references unknown line %s", a.ID, a.OrderItemID)
			}
			entries = append(entries, txlog.NewEntry(txlog.TypeShip, line.ItemID, a.BatchID, a.Qty.Neg()).
				ForOrder(o.ID, a.OrderItemID).
				ForShipment(sh.ID).
				WithMeta(txlog.MetaOrderNo, o.OrderNo).
				WithMeta(txlog.MetaLotNo, a.LotNo))

			if err := s.allocations.Delete(ctx, a.ID); err != nil {
				return err
			}
			if err := s.orders.AddShipped(ctx, a.OrderItemID, a.Qty); err != nil {
				return err
			}
			consumptions = append(consumptions, Consumption{
				AllocationID: a.ID,
				OrderItemID:  a.OrderItemID,
				BatchID:      a.BatchID,
				ItemID:       line.ItemID,
				LotNo:        a.LotNo,
				Qty:          a.Qty,
			})
		}
		if err := s.ledger.RecordMany(ctx, entries); err != nil {
			return err
		}

		prev := o.Status
		if err := s.orders.SetStatus(ctx, o.ID, StatusShipped); err != nil {
			return err
		}
		o.Status = StatusShipped

		payload := shipPayload{
			OrderID:      o.ID,
			ShipmentID:   sh.ID,
			PrevStatus:   prev,
			Carrier:      sh.Carrier,
			Notes:        sh.Notes,
			Consumptions: consumptions,
		}
		if err := s.undo.Push(ctx, undo.OpShip, payload, fmt.Sprintf("Ship order %s (%s)", o.OrderNo, sh.ShipmentNo)); err != nil {
			return err
		}

		res = &ShipResult{Shipment: sh, Order: o, Consumptions: consumptions}
		return nil
	})
	return res, err
}

// afterShip publishes events and checks low stock. Failures are logged only.
func (s *Service) afterShip(ctx context.Context, res *ShipResult) {
	s.sink.Publish(ctx, notify.Event{
		Type:          notify.EventShipmentCreated,
		AggregateType: "shipment",
		AggregateID:   res.Shipment.ID,
		Data:          res,
	})
	s.sink.Publish(ctx, notify.Event{
		Type:          notify.EventOrderFulfilled,
		AggregateType: "order",
		AggregateID:   res.Order.ID,
		Data:          map[string]any{"order_no": res.Order.OrderNo, "shipment_no": res.Shipment.ShipmentNo},
	})

	if s.stock == nil {
		return
	}
	seen := make(map[id.ID]struct{})
	var itemIDs []id.ID
	for _, c := range res.Consumptions {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		itemIDs = append(itemIDs, c.ItemID)
	}
	if _, err := s.stock.CheckLowStock(ctx, itemIDs); err != nil {
		logger.Warn(ctx, "low stock check failed", "order_id", res.Order.ID, "error", err)
	}
}

// ShipHandler reverses and replays shipments.
type ShipHandler struct {
	svc *Service
}

// NewShipHandler creates the handler for undo.OpShip.
func NewShipHandler(svc *Service) *ShipHandler {
	return &ShipHandler{svc: svc}
}

// Undo re-creates the consumed allocations, deletes the shipment and
// restores the order status it had before shipping.
func (h *ShipHandler) Undo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p shipPayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}
	s := h.svc

	err := s.WithOrderLock(ctx, p.OrderID, func(ctx context.Context) error {
		return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			o, err := s.orders.GetForUpdate(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if o.Status != StatusShipped {
				return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo shipment: order %s is %s", o.OrderNo, o.Status))
			}
			if _, err := s.shipments.GetByID(ctx, p.ShipmentID); err != nil {
				if apperror.IsNotFound(err) {
					return apperror.NewUndoRedo(fmt.Sprintf("Cannot undo shipment: shipment %s no longer exists", p.ShipmentID))
				}
				return err
			}

			entries := make([]*txlog.Entry, 0, len(p.Consumptions))
			for _, c := range p.Consumptions {
				a := NewAllocation(p.OrderID, c.OrderItemID, c.BatchID, c.Qty)
				a.ID = c.AllocationID
				if err := s.allocations.Create(ctx, a); err != nil {
					return err
				}
				if err := s.orders.AddShipped(ctx, c.OrderItemID, c.Qty.Neg()); err != nil {
					return err
				}
				entries = append(entries, txlog.NewEntry(txlog.TypeShip, c.ItemID, c.BatchID, c.Qty).
					ForOrder(p.OrderID, c.OrderItemID).
					ForShipment(p.ShipmentID).
					WithMeta(txlog.MetaReason, txlog.ReasonUndoShip).
					WithMeta(txlog.MetaOrderNo, o.OrderNo))
			}
			if err := s.ledger.RecordMany(ctx, entries); err != nil {
				return err
			}
			if err := s.shipments.Delete(ctx, p.ShipmentID); err != nil {
				return err
			}
			return s.orders.SetStatus(ctx, p.OrderID, p.PrevStatus)
		})
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	return undo.Outcome{
		Message: fmt.Sprintf("Undid shipment %s: %d batch(es) restored", p.ShipmentID, len(p.Consumptions)),
	}, nil
}

// Redo ships the order again.
func (h *ShipHandler) Redo(ctx context.Context, rec *undo.Record) (undo.Outcome, error) {
	var p shipPayload
	if err := rec.Decode(&p); err != nil {
		return undo.Outcome{}, err
	}

	var res *ShipResult
	err := h.svc.WithOrderLock(ctx, p.OrderID, func(ctx context.Context) error {
		var err error
		res, err = h.svc.ship(ctx, p.OrderID, ShipInput{Carrier: p.Carrier, Notes: p.Notes})
		return err
	})
	if err != nil {
		return undo.Outcome{}, err
	}
	h.svc.afterShip(ctx, res)

	return undo.Outcome{
		Message: fmt.Sprintf("Redid shipment of order %s: %s", res.Order.OrderNo, res.Shipment.ShipmentNo),
		Payload: shipPayload{
			OrderID:      res.Order.ID,
			ShipmentID:   res.Shipment.ID,
			PrevStatus:   p.PrevStatus,
			Carrier:      res.Shipment.Carrier,
			Notes:        res.Shipment.Notes,
			Consumptions: res.Consumptions,
		},
	}, nil
}
