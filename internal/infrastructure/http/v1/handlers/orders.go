package handlers

import (
	"github.com/gin-gonic/gin"

	"stockalloc/internal/domain/allocation"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/infrastructure/http/v1/dto"
)

// OrderHandler serves orders and their allocation and shipping.
type OrderHandler struct {
	*BaseHandler
	orders     *orders.Service
	allocation *allocation.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, orders *orders.Service, allocation *allocation.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, orders: orders, allocation: allocation}
}

// Create handles POST /orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lines, err := req.ToLines()
	if err != nil {
		h.Error(c, err)
		return
	}
	o, err := h.orders.Create(c.Request.Context(), req.CustomerRef, lines)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, o)
}

// List handles GET /orders.
func (h *OrderHandler) List(c *gin.Context) {
	var q dto.OrderListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.orders.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Get handles GET /orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParamID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	o, err := h.orders.Get(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	allocs, err := h.orders.Allocations(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	shipments, err := h.orders.Shipments(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if allocs == nil {
		allocs = []*orders.Allocation{}
	}
	if shipments == nil {
		shipments = []*orders.Shipment{}
	}
	h.OK(c, dto.OrderResponse{Order: o, Allocations: allocs, Shipments: shipments})
}

// Allocate handles POST /orders/:id/allocate.
func (h *OrderHandler) Allocate(c *gin.Context) {
	orderID, ok := h.ParamID(c)
	if !ok {
		return
	}
	rep, err := h.allocation.AllocateOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rep)
}

// Deallocate handles POST /orders/:id/deallocate.
func (h *OrderHandler) Deallocate(c *gin.Context) {
	orderID, ok := h.ParamID(c)
	if !ok {
		return
	}
	rep, err := h.allocation.DeallocateOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rep)
}

// Ship handles POST /orders/:id/ship.
func (h *OrderHandler) Ship(c *gin.Context) {
	orderID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.ShipRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.orders.Ship(c.Request.Context(), orderID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Cancel handles POST /orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	orderID, ok := h.ParamID(c)
	if !ok {
		return
	}
	o, err := h.allocation.CancelOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}

// Advance handles POST /orders/:id/status.
func (h *OrderHandler) Advance(c *gin.Context) {
	orderID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.OrderStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	o, err := h.orders.Advance(c.Request.Context(), orderID, orders.Status(req.Status))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, o)
}

// AllocatePending handles POST /orders/allocate-pending.
func (h *OrderHandler) AllocatePending(c *gin.Context) {
	var req dto.AllocatePendingRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	rep, err := h.allocation.AllocatePending(c.Request.Context(), req.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rep)
}
