package dto

import (
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/returns"
)

type CreateReturnRequest struct {
	OrderItemID string         `json:"orderItemId" binding:"required,uuid"`
	Qty         types.Quantity `json:"qty" binding:"required"`
	Reason      string         `json:"reason" binding:"max=512"`
}

func (r *CreateReturnRequest) LineID() (id.ID, error) {
	v, err := id.Parse(r.OrderItemID)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid orderItemId")
	}
	return v, nil
}

type ReturnListQuery struct {
	OrderID string `form:"orderId" binding:"omitempty,uuid"`
	Status  string `form:"status" binding:"omitempty,oneof=PENDING RESTOCKED REJECTED"`
	PageQuery
}

func (q ReturnListQuery) ToFilter() (returns.Filter, error) {
	f := returns.Filter{Page: q.Page()}
	orderID, err := parseOptionalID(q.OrderID)
	if err != nil {
		return f, apperror.NewValidation("invalid orderId")
	}
	f.OrderID = orderID
	if q.Status != "" {
		s := returns.Status(q.Status)
		f.Status = &s
	}
	return f, nil
}
