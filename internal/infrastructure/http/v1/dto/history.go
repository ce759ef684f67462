package dto

import (
	"strings"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

type UndoRequest struct {
	Count int `json:"count" binding:"omitempty,min=1,max=100"`
}

// CountOrOne defaults an absent count to one step.
func (r UndoRequest) CountOrOne() int {
	if r.Count <= 0 {
		return 1
	}
	return r.Count
}

type HistoryResponse struct {
	Undo []*undo.Record `json:"undo"`
	Redo []*undo.Record `json:"redo"`
}

// TransactionQuery filters the transaction log. Type takes a comma
// separated list.
type TransactionQuery struct {
	BatchID     string `form:"batch_id" binding:"omitempty,uuid"`
	ItemID      string `form:"item_id" binding:"omitempty,uuid"`
	OrderID     string `form:"order_id" binding:"omitempty,uuid"`
	OrderItemID string `form:"order_item_id" binding:"omitempty,uuid"`
	ShipmentID  string `form:"shipment_id" binding:"omitempty,uuid"`
	Type        string `form:"type"`
	PageQuery
}

func (q TransactionQuery) ToFilter() (txlog.Filter, error) {
	f := txlog.Filter{Page: q.Page()}
	var err error
	if f.BatchID, err = parseOptionalID(q.BatchID); err != nil {
		return f, apperror.NewValidation("invalid batch_id")
	}
	if f.ItemID, err = parseOptionalID(q.ItemID); err != nil {
		return f, apperror.NewValidation("invalid item_id")
	}
	if f.OrderID, err = parseOptionalID(q.OrderID); err != nil {
		return f, apperror.NewValidation("invalid order_id")
	}
	if f.OrderItemID, err = parseOptionalID(q.OrderItemID); err != nil {
		return f, apperror.NewValidation("invalid order_item_id")
	}
	if f.ShipmentID, err = parseOptionalID(q.ShipmentID); err != nil {
		return f, apperror.NewValidation("invalid shipment_id")
	}
	for _, t := range strings.Split(q.Type, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		typ := txlog.Type(t)
		if !typ.Valid() {
			return f, apperror.NewValidation("unknown transaction type").WithDetail("type", t)
		}
		f.Types = append(f.Types, typ)
	}
	return f, nil
}
