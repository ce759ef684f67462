package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/ledger"
	"stockalloc/internal/infrastructure/http/v1/dto"
)

// InventoryHandler serves items and batches.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
	ledger  *ledger.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service, ledger *ledger.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service, ledger: ledger}
}

// --- Items ---

// CreateItem handles POST /items.
func (h *InventoryHandler) CreateItem(c *gin.Context) {
	var req dto.CreateItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	item, err := h.service.CreateItem(c.Request.Context(), req.SKU, req.Name, req.Description, req.ReorderThreshold)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, item)
}

// ListItems handles GET /items.
func (h *InventoryHandler) ListItems(c *gin.Context) {
	var q dto.ItemListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.service.ListItems(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// GetItem handles GET /items/:id.
func (h *InventoryHandler) GetItem(c *gin.Context) {
	itemID, ok := h.ParamID(c)
	if !ok {
		return
	}
	item, err := h.service.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, item)
}

// LowStock handles GET /items/low-stock.
func (h *InventoryHandler) LowStock(c *gin.Context) {
	levels, err := h.service.LowStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": levels})
}

// --- Batches ---

// ReceiveBatch handles POST /batches.
func (h *InventoryHandler) ReceiveBatch(c *gin.Context) {
	var req dto.ReceiveBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	b, err := h.service.ReceiveBatch(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromBatch(b, h.Now()))
}

// ListBatches handles GET /batches.
func (h *InventoryHandler) ListBatches(c *gin.Context) {
	var q dto.BatchListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.service.ListBatches(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, domain.ListResult[dto.BatchResponse]{
		Items:      dto.FromBatches(result.Items, h.Now()),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// GetBatch handles GET /batches/:id.
func (h *InventoryHandler) GetBatch(c *gin.Context) {
	batchID, ok := h.ParamID(c)
	if !ok {
		return
	}
	b, err := h.service.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBatch(b, h.Now()))
}

// ReserveBatch handles POST /batches/:id/reserve.
func (h *InventoryHandler) ReserveBatch(c *gin.Context) {
	h.adjust(c, h.ledger.ReserveBatch)
}

// ReleaseBatch handles POST /batches/:id/release.
func (h *InventoryHandler) ReleaseBatch(c *gin.Context) {
	h.adjust(c, h.ledger.ReleaseBatch)
}

func (h *InventoryHandler) adjust(c *gin.Context, op func(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error)) {
	batchID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.QtyRequest
	if !h.BindJSON(c, &req) {
		return
	}
	available, err := op(c.Request.Context(), batchID, req.Qty)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.QtyResponse{BatchID: batchID.String(), AvailableQty: available})
}

// SetBatchStatus handles PATCH /batches/:id/status.
func (h *InventoryHandler) SetBatchStatus(c *gin.Context) {
	batchID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.BatchStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	b, err := h.service.SetBatchStatus(c.Request.Context(), batchID, inventory.BatchStatus(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBatch(b, h.Now()))
}

// DeleteBatch handles DELETE /batches/:id.
func (h *InventoryHandler) DeleteBatch(c *gin.Context) {
	batchID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteBatch(c.Request.Context(), batchID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
