package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockalloc/internal/core/id"
	"stockalloc/internal/domain/returns"
	"stockalloc/internal/infrastructure/http/v1/dto"
)

// ReturnHandler serves customer returns.
type ReturnHandler struct {
	*BaseHandler
	service *returns.Service
}

// NewReturnHandler creates a new return handler.
func NewReturnHandler(base *BaseHandler, service *returns.Service) *ReturnHandler {
	return &ReturnHandler{BaseHandler: base, service: service}
}

// Create handles POST /returns.
func (h *ReturnHandler) Create(c *gin.Context) {
	var req dto.CreateReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lineID, err := req.LineID()
	if err != nil {
		h.Error(c, err)
		return
	}
	r, err := h.service.Create(c.Request.Context(), lineID, req.Qty, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r)
}

// List handles GET /returns.
func (h *ReturnHandler) List(c *gin.Context) {
	var q dto.ReturnListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Get handles GET /returns/:id.
func (h *ReturnHandler) Get(c *gin.Context) {
	h.byID(c, h.service.Get)
}

// Restock handles POST /returns/:id/restock.
func (h *ReturnHandler) Restock(c *gin.Context) {
	h.byID(c, h.service.Restock)
}

// Reject handles POST /returns/:id/reject.
func (h *ReturnHandler) Reject(c *gin.Context) {
	h.byID(c, h.service.Reject)
}

func (h *ReturnHandler) byID(c *gin.Context, op func(ctx context.Context, returnID id.ID) (*returns.Return, error)) {
	returnID, ok := h.ParamID(c)
	if !ok {
		return
	}
	r, err := op(c.Request.Context(), returnID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}
