package handlers

import (
	"github.com/gin-gonic/gin"

	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/domain/expiry"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
	"stockalloc/internal/infrastructure/http/v1/dto"
)

// HistoryHandler serves undo/redo, the transaction log, notifications and
// the on-demand expiry scan.
type HistoryHandler struct {
	*BaseHandler
	undo          *undo.Coordinator
	txlog         *txlog.Service
	expiry        *expiry.Scanner
	notifications *notify.Service
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(base *BaseHandler, u *undo.Coordinator, log *txlog.Service, scanner *expiry.Scanner, notes *notify.Service) *HistoryHandler {
	return &HistoryHandler{BaseHandler: base, undo: u, txlog: log, expiry: scanner, notifications: notes}
}

// Undo handles POST /undo.
func (h *HistoryHandler) Undo(c *gin.Context) {
	var req dto.UndoRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.undo.PerformUndo(c.Request.Context(), req.CountOrOne())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Redo handles POST /redo.
func (h *HistoryHandler) Redo(c *gin.Context) {
	var req dto.UndoRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.undo.PerformRedo(c.Request.Context(), req.CountOrOne())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// History handles GET /undo/history.
func (h *HistoryHandler) History(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 20)
	undoRecs, redoRecs, err := h.undo.History(c.Request.Context(), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	if undoRecs == nil {
		undoRecs = []*undo.Record{}
	}
	if redoRecs == nil {
		redoRecs = []*undo.Record{}
	}
	h.OK(c, dto.HistoryResponse{Undo: undoRecs, Redo: redoRecs})
}

// Transactions handles GET /transactions.
func (h *HistoryHandler) Transactions(c *gin.Context) {
	var q dto.TransactionQuery
	if !h.BindQuery(c, &q) {
		return
	}
	f, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.txlog.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// ScanExpiry handles POST /expiry/scan.
func (h *HistoryHandler) ScanExpiry(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.expiry.Scan(ctx, appctx.ActorName(ctx), h.Now())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Notifications handles GET /notifications for the calling actor.
func (h *HistoryHandler) Notifications(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.notifications.List(ctx, appctx.ActorName(ctx), h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}
	if list == nil {
		list = []*notify.Notification{}
	}
	h.OK(c, gin.H{"items": list})
}
