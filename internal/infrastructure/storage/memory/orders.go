package memory

import (
	"cmp"
	"context"
	"slices"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/orders"
)

// OrderRepo implements orders.Repository.
type OrderRepo struct{ s *Store }

func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	return r.s.view(ctx, func(d *data) error {
		for _, existing := range d.orders {
			if existing.OrderNo == o.OrderNo {
				return apperror.NewDuplicate("order", "order_no", o.OrderNo)
			}
		}
		for _, it := range o.Items {
			if _, ok := d.items[it.ItemID]; !ok {
				return apperror.NewNotFound("item", it.ItemID)
			}
		}
		head := *o
		head.Items = nil
		d.orders[o.ID] = head
		for _, it := range o.Items {
			d.lines[it.ID] = *it
		}
		return nil
	})
}

func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	var out *orders.Order
	err := r.s.view(ctx, func(d *data) error {
		o, ok := d.orders[orderID]
		if !ok {
			return apperror.NewNotFound("order", orderID)
		}
		o.Items = d.linesOf(orderID)
		out = &o
		return nil
	})
	return out, err
}

// GetForUpdate reads the order. The caller's transaction already holds the
// store mutex.
func (r *OrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.GetByID(ctx, orderID)
}

func (d *data) linesOf(orderID id.ID) []*orders.OrderItem {
	var out []*orders.OrderItem
	for _, it := range d.lines {
		if it.OrderID != orderID {
			continue
		}
		if item, ok := d.items[it.ItemID]; ok {
			it.SKU = item.SKU
		}
		out = append(out, ptr(it))
	}
	slices.SortFunc(out, func(a, b *orders.OrderItem) int { return cmp.Compare(a.LineNo, b.LineNo) })
	return out
}

func (r *OrderRepo) List(ctx context.Context, f orders.Filter) (domain.ListResult[*orders.Order], error) {
	var out domain.ListResult[*orders.Order]
	err := r.s.view(ctx, func(d *data) error {
		var all []*orders.Order
		for _, o := range d.orders {
			if f.Status != nil && o.Status != *f.Status {
				continue
			}
			if f.CustomerRef != "" && o.CustomerRef != f.CustomerRef {
				continue
			}
			all = append(all, ptr(o))
		}
		slices.SortFunc(all, func(a, b *orders.Order) int { return id.Compare(b.ID, a.ID) })
		out = paginate(all, f.Page)
		return nil
	})
	return out, err
}

func (r *OrderRepo) ListIDsAfter(ctx context.Context, status orders.Status, after id.ID, limit int) ([]id.ID, error) {
	var out []id.ID
	err := r.s.view(ctx, func(d *data) error {
		for _, o := range d.orders {
			if o.Status == status && id.Compare(o.ID, after) > 0 {
				out = append(out, o.ID)
			}
		}
		slices.SortFunc(out, id.Compare)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r *OrderRepo) ListIDsByStatus(ctx context.Context, statuses []orders.Status, limit int) ([]id.ID, error) {
	var out []id.ID
	err := r.s.view(ctx, func(d *data) error {
		var matched []orders.Order
		for _, o := range d.orders {
			if slices.Contains(statuses, o.Status) {
				matched = append(matched, o)
			}
		}
		slices.SortFunc(matched, func(a, b orders.Order) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return id.Compare(a.ID, b.ID)
		})
		for _, o := range matched {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, o.ID)
		}
		return nil
	})
	return out, err
}

func (r *OrderRepo) SetStatus(ctx context.Context, orderID id.ID, status orders.Status) error {
	return r.s.view(ctx, func(d *data) error {
		o, ok := d.orders[orderID]
		if !ok {
			return apperror.NewNotFound("order", orderID)
		}
		o.Status = status
		o.Touch()
		d.orders[orderID] = o
		return nil
	})
}

func (r *OrderRepo) AddLine(ctx context.Context, line *orders.OrderItem) error {
	return r.s.view(ctx, func(d *data) error {
		if _, ok := d.orders[line.OrderID]; !ok {
			return apperror.NewNotFound("order", line.OrderID)
		}
		for _, it := range d.lines {
			if it.OrderID == line.OrderID && it.ItemID == line.ItemID {
				return apperror.NewDuplicate("order line", "item_id", line.ItemID.String())
			}
		}
		d.lines[line.ID] = *line
		return nil
	})
}

func (r *OrderRepo) GetItem(ctx context.Context, orderItemID id.ID) (*orders.OrderItem, error) {
	var out *orders.OrderItem
	err := r.s.view(ctx, func(d *data) error {
		it, ok := d.lines[orderItemID]
		if !ok {
			return apperror.NewNotFound("order item", orderItemID)
		}
		if item, ok := d.items[it.ItemID]; ok {
			it.SKU = item.SKU
		}
		out = &it
		return nil
	})
	return out, err
}

func (r *OrderRepo) AddAllocated(ctx context.Context, orderItemID id.ID, delta types.Quantity) error {
	return r.updateLine(ctx, orderItemID, func(it *orders.OrderItem) error {
		next := it.QtyAllocated + delta
		if next.IsNegative() || next > it.QtyRequested {
			return apperror.NewValidation("allocated quantity must be within [0, requested]").
				WithDetail("order_item_id", orderItemID).
				WithDetail("allocated", next.String())
		}
		it.QtyAllocated = next
		return nil
	})
}

func (r *OrderRepo) SetAllocated(ctx context.Context, orderItemID id.ID, qty types.Quantity) error {
	return r.updateLine(ctx, orderItemID, func(it *orders.OrderItem) error {
		if qty.IsNegative() || qty > it.QtyRequested {
			return apperror.NewValidation("allocated quantity must be within [0, requested]").
				WithDetail("order_item_id", orderItemID)
		}
		it.QtyAllocated = qty
		return nil
	})
}

func (r *OrderRepo) AddShipped(ctx context.Context, orderItemID id.ID, delta types.Quantity) error {
	return r.updateLine(ctx, orderItemID, func(it *orders.OrderItem) error {
		next := it.QtyShipped + delta
		if next.IsNegative() {
			return apperror.NewValidation("shipped quantity cannot be negative").
				WithDetail("order_item_id", orderItemID)
		}
		it.QtyShipped = next
		return nil
	})
}

func (r *OrderRepo) updateLine(ctx context.Context, orderItemID id.ID, fn func(it *orders.OrderItem) error) error {
	return r.s.view(ctx, func(d *data) error {
		it, ok := d.lines[orderItemID]
		if !ok {
			return apperror.NewNotFound("order item", orderItemID)
		}
		if err := fn(&it); err != nil {
			return err
		}
		it.Touch()
		d.lines[orderItemID] = it
		return nil
	})
}

// AllocationRepo implements orders.AllocationRepository and
// inventory.AllocationCounter.
type AllocationRepo struct{ s *Store }

func (r *AllocationRepo) Create(ctx context.Context, a *orders.Allocation) error {
	return r.s.view(ctx, func(d *data) error {
		if !a.Qty.IsPositive() {
			return apperror.NewValidation("allocation quantity must be positive")
		}
		if _, ok := d.allocations[a.ID]; ok {
			return apperror.NewDuplicate("allocation", "id", a.ID.String())
		}
		if _, ok := d.batches[a.BatchID]; !ok {
			return apperror.NewNotFound("batch", a.BatchID)
		}
		if _, ok := d.lines[a.OrderItemID]; !ok {
			return apperror.NewNotFound("order item", a.OrderItemID)
		}
		d.allocations[a.ID] = *a
		return nil
	})
}

func (r *AllocationRepo) GetByID(ctx context.Context, allocationID id.ID) (*orders.Allocation, error) {
	var out *orders.Allocation
	err := r.s.view(ctx, func(d *data) error {
		a, ok := d.allocations[allocationID]
		if !ok {
			return apperror.NewNotFound("allocation", allocationID)
		}
		out = d.withLot(a)
		return nil
	})
	return out, err
}

func (d *data) withLot(a orders.Allocation) *orders.Allocation {
	if b, ok := d.batches[a.BatchID]; ok {
		a.LotNo = b.LotNo
	}
	return &a
}

func (r *AllocationRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]*orders.Allocation, error) {
	var out []*orders.Allocation
	err := r.s.view(ctx, func(d *data) error {
		for _, a := range d.allocations {
			if a.OrderID == orderID {
				out = append(out, d.withLot(a))
			}
		}
		slices.SortFunc(out, func(a, b *orders.Allocation) int { return id.Compare(a.ID, b.ID) })
		return nil
	})
	return out, err
}

func (r *AllocationRepo) Delete(ctx context.Context, allocationID id.ID) error {
	return r.s.view(ctx, func(d *data) error {
		if _, ok := d.allocations[allocationID]; !ok {
			return apperror.NewNotFound("allocation", allocationID)
		}
		delete(d.allocations, allocationID)
		return nil
	})
}

func (r *AllocationRepo) CountByBatch(ctx context.Context, batchID id.ID) (int, error) {
	var n int
	err := r.s.view(ctx, func(d *data) error {
		for _, a := range d.allocations {
			if a.BatchID == batchID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *AllocationRepo) SumByOrderItem(ctx context.Context, orderID id.ID) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity)
	err := r.s.view(ctx, func(d *data) error {
		for _, a := range d.allocations {
			if a.OrderID == orderID {
				out[a.OrderItemID] += a.Qty
			}
		}
		return nil
	})
	return out, err
}

// ShipmentRepo implements orders.ShipmentRepository.
type ShipmentRepo struct{ s *Store }

func (r *ShipmentRepo) Create(ctx context.Context, sh *orders.Shipment) error {
	return r.s.view(ctx, func(d *data) error {
		d.shipments[sh.ID] = *sh
		return nil
	})
}

func (r *ShipmentRepo) GetByID(ctx context.Context, shipmentID id.ID) (*orders.Shipment, error) {
	var out *orders.Shipment
	err := r.s.view(ctx, func(d *data) error {
		sh, ok := d.shipments[shipmentID]
		if !ok {
			return apperror.NewNotFound("shipment", shipmentID)
		}
		out = &sh
		return nil
	})
	return out, err
}

func (r *ShipmentRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]*orders.Shipment, error) {
	var out []*orders.Shipment
	err := r.s.view(ctx, func(d *data) error {
		for _, sh := range d.shipments {
			if sh.OrderID == orderID {
				out = append(out, ptr(sh))
			}
		}
		slices.SortFunc(out, func(a, b *orders.Shipment) int { return a.ShippedAt.Compare(b.ShippedAt) })
		return nil
	})
	return out, err
}

func (r *ShipmentRepo) Delete(ctx context.Context, shipmentID id.ID) error {
	return r.s.view(ctx, func(d *data) error {
		if _, ok := d.shipments[shipmentID]; !ok {
			return apperror.NewNotFound("shipment", shipmentID)
		}
		delete(d.shipments, shipmentID)
		return nil
	})
}
