package inventory

import (
	"context"
	"fmt"
	"time"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/tx"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/pkg/logger"
)

// Deps wires the inventory service.
type Deps struct {
	TxManager   tx.Manager
	Items       ItemRepository
	Batches     BatchRepository
	Allocations AllocationCounter
	Ledger      *txlog.Service
	Undo        *undo.Recorder
	Sink        *notify.Sink
}

// Service manages items and batches.
type Service struct {
	txm         tx.Manager
	items       ItemRepository
	batches     BatchRepository
	allocations AllocationCounter
	ledger      *txlog.Service
	undo        *undo.Recorder
	sink        *notify.Sink
}

// NewService creates an inventory service.
func NewService(d Deps) *Service {
	return &Service{
		txm:         d.TxManager,
		items:       d.Items,
		batches:     d.Batches,
		allocations: d.Allocations,
		ledger:      d.Ledger,
		undo:        d.Undo,
		sink:        d.Sink,
	}
}

// --- Items ---

// CreateItem registers a new SKU.
func (s *Service) CreateItem(ctx context.Context, sku, name, description string, reorderThreshold types.Quantity) (*Item, error) {
	item := NewItem(sku, name, reorderThreshold)
	item.Description = description
	if err := item.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	logger.Info(ctx, "item created", "item_id", item.ID, "sku", item.SKU)
	return item, nil
}

// GetItem returns an item by id.
func (s *Service) GetItem(ctx context.Context, itemID id.ID) (*Item, error) {
	return s.items.GetByID(ctx, itemID)
}

// GetItemBySKU returns an item by SKU.
func (s *Service) GetItemBySKU(ctx context.Context, sku string) (*Item, error) {
	return s.items.GetBySKU(ctx, sku)
}

// ListItems lists items.
func (s *Service) ListItems(ctx context.Context, f ItemFilter) (domain.ListResult[*Item], error) {
	f.Page = f.Page.Normalize()
	return s.items.List(ctx, f)
}

// --- Batches ---

// ReceiveInput describes one incoming lot.
type ReceiveInput struct {
	ItemID id.ID
	LotNo  string
	Qty    types.Quantity
	Expiry *time.Time
}

// receivePayload is the undo record of a receipt.
type receivePayload struct {
	Batches []receivedBatch `json:"batches"`
}

type receivedBatch struct {
	BatchID     id.ID          `json:"batch_id"`
	ItemID      id.ID          `json:"item_id"`
	LotNo       string         `json:"lot_no"`
	ReceivedQty types.Quantity `json:"received_qty"`
	ExpiryDate  *time.Time     `json:"expiry_date,omitempty"`
}

// ReceiveBatch books a new lot into stock.
func (s *Service) ReceiveBatch(ctx context.Context, in ReceiveInput) (*Batch, error) {
	b := NewBatch(in.ItemID, in.LotNo, in.Qty, in.Expiry)
	if err := b.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.items.GetByID(ctx, in.ItemID); err != nil {
			return err
		}
		if err := s.batches.Create(ctx, b); err != nil {
			return err
		}
		entry := txlog.NewEntry(txlog.TypeReceipt, b.ItemID, b.ID, b.ReceivedQty).
			WithMeta(txlog.MetaLotNo, b.LotNo)
		if err := s.ledger.Record(ctx, entry); err != nil {
			return err
		}
		payload := receivePayload{Batches: []receivedBatch{toReceived(b)}}
		return s.undo.Push(ctx, undo.OpReceive, payload, fmt.Sprintf("Receive batch %s (%s)", b.LotNo, b.ReceivedQty))
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch received", "batch_id", b.ID, "item_id", b.ItemID, "lot_no", b.LotNo, "qty", b.ReceivedQty)
	return b, nil
}

// GetBatch returns a batch by id.
func (s *Service) GetBatch(ctx context.Context, batchID id.ID) (*Batch, error) {
	return s.batches.GetByID(ctx, batchID)
}

// ListBatches lists batches.
func (s *Service) ListBatches(ctx context.Context, f BatchFilter) (domain.ListResult[*Batch], error) {
	f.Page = f.Page.Normalize()
	return s.batches.List(ctx, f)
}

// SetBatchStatus moves a batch between AVAILABLE, HOLD, QUARANTINE and RESERVED.
func (s *Service) SetBatchStatus(ctx context.Context, batchID id.ID, status BatchStatus) (*Batch, error) {
	if !status.Valid() {
		return nil, apperror.NewValidation("unknown batch status").WithDetail("status", string(status))
	}

	var out *Batch
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.batches.GetForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(status) {
			return apperror.NewInvalidState("batch", b.ID, string(b.Status)).
				WithDetail("requested_status", string(status))
		}
		if err := s.batches.SetStatus(ctx, b.ID, status); err != nil {
			return err
		}
		b.Status = status
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch status changed", "batch_id", batchID, "status", status)
	return out, nil
}

// DeleteBatch removes a batch that was never allocated against.
func (s *Service) DeleteBatch(ctx context.Context, batchID id.ID) error {
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		b, err := s.lockUnused(ctx, batchID)
		if err != nil {
			return err
		}
		entry := txlog.NewEntry(txlog.TypeAdjust, b.ItemID, b.ID, b.ReceivedQty.Neg()).
			WithMeta(txlog.MetaLotNo, b.LotNo).
			WithMeta(txlog.MetaReason, "batch_deleted")
		if err := s.ledger.Record(ctx, entry); err != nil {
			return err
		}
		return s.batches.Delete(ctx, b.ID)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "batch deleted", "batch_id", batchID)
	return nil
}

// lockUnused locks a batch and fails with INVALID_STATE unless it is untouched.
func (s *Service) lockUnused(ctx context.Context, batchID id.ID) (*Batch, error) {
	b, err := s.batches.GetForUpdate(ctx, batchID)
	if err != nil {
		return nil, err
	}
	n, err := s.allocations.CountByBatch(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 || b.AvailableQty != b.ReceivedQty {
		return nil, apperror.NewInvalidState("batch", b.ID, string(b.Status)).
			WithDetail("lot_no", b.LotNo).
			WithDetail("allocations", n).
			WithDetail("allocated_qty", b.Allocated().String())
	}
	return b, nil
}

// --- Stock levels ---

// LowStock lists items at or below their reorder threshold.
func (s *Service) LowStock(ctx context.Context) ([]StockLevel, error) {
	levels, err := s.items.StockLevels(ctx, nil)
	if err != nil {
		return nil, err
	}
	low := make([]StockLevel, 0)
	for _, l := range levels {
		if l.IsLow() {
			low = append(low, l)
		}
	}
	return low, nil
}

// CheckLowStock publishes stock.low for every given item that is at or below
// its threshold and returns those levels.
func (s *Service) CheckLowStock(ctx context.Context, itemIDs []id.ID) ([]StockLevel, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	levels, err := s.items.StockLevels(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	var low []StockLevel
	for _, l := range levels {
		if !l.IsLow() {
			continue
		}
		low = append(low, l)
		s.sink.Publish(ctx, notify.Event{
			Type:          notify.EventStockLow,
			AggregateType: "item",
			AggregateID:   l.ItemID,
			Data:          l,
		})
		logger.Warn(ctx, "stock below reorder threshold", "sku", l.SKU, "available", l.Available, "threshold", l.ReorderThreshold)
	}
	return low, nil
}

func toReceived(b *Batch) receivedBatch {
	return receivedBatch{
		BatchID:     b.ID,
		ItemID:      b.ItemID,
		LotNo:       b.LotNo,
		ReceivedQty: b.ReceivedQty,
		ExpiryDate:  b.ExpiryDate,
	}
}
