package memory

import (
	"context"
	"slices"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/returns"
)

// SequenceRepo implements numerator.SequenceStore.
type SequenceRepo struct{ s *Store }

func (r *SequenceRepo) Increment(ctx context.Context, key string, by int64) (int64, error) {
	var v int64
	err := r.s.view(ctx, func(d *data) error {
		d.sequences[key] += by
		v = d.sequences[key]
		return nil
	})
	return v, err
}

// NotificationRepo implements notify.Repository.
type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Create(ctx context.Context, n *notify.Notification) error {
	return r.s.view(ctx, func(d *data) error {
		d.notes = append(d.notes, *n)
		return nil
	})
}

func (r *NotificationRepo) ListByActor(ctx context.Context, actor string, limit int) ([]*notify.Notification, error) {
	var out []*notify.Notification
	err := r.s.view(ctx, func(d *data) error {
		for i := len(d.notes) - 1; i >= 0; i-- {
			if limit > 0 && len(out) == limit {
				break
			}
			if actor == "" || d.notes[i].Actor == actor {
				out = append(out, ptr(d.notes[i]))
			}
		}
		return nil
	})
	return out, err
}

// EventRecorder implements notify.Publisher by keeping events in memory.
type EventRecorder struct{ s *Store }

func (r *EventRecorder) Publish(ctx context.Context, evt notify.Event) error {
	return r.s.view(ctx, func(d *data) error {
		d.events = append(d.events, evt)
		return nil
	})
}

// Events returns published events of the given type, oldest first. An
// empty type returns all of them.
func (r *EventRecorder) Events(ctx context.Context, eventType string) []notify.Event {
	var out []notify.Event
	_ = r.s.view(ctx, func(d *data) error {
		for _, e := range d.events {
			if eventType == "" || e.Type == eventType {
				out = append(out, e)
			}
		}
		return nil
	})
	return out
}

// ReturnRepo implements returns.Repository.
type ReturnRepo struct{ s *Store }

func (r *ReturnRepo) Create(ctx context.Context, ret *returns.Return) error {
	return r.s.view(ctx, func(d *data) error {
		if _, ok := d.lines[ret.OrderItemID]; !ok {
			return apperror.NewNotFound("order item", ret.OrderItemID)
		}
		d.returns[ret.ID] = *ret
		return nil
	})
}

func (r *ReturnRepo) GetByID(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	var out *returns.Return
	err := r.s.view(ctx, func(d *data) error {
		ret, ok := d.returns[returnID]
		if !ok {
			return apperror.NewNotFound("return", returnID)
		}
		out = &ret
		return nil
	})
	return out, err
}

// GetForUpdate reads the return. The caller's transaction already holds the
// store mutex.
func (r *ReturnRepo) GetForUpdate(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	return r.GetByID(ctx, returnID)
}

func (r *ReturnRepo) List(ctx context.Context, f returns.Filter) (domain.ListResult[*returns.Return], error) {
	var out domain.ListResult[*returns.Return]
	err := r.s.view(ctx, func(d *data) error {
		var all []*returns.Return
		for _, ret := range d.returns {
			if f.OrderID != nil && ret.OrderID != *f.OrderID {
				continue
			}
			if f.Status != nil && ret.Status != *f.Status {
				continue
			}
			all = append(all, ptr(ret))
		}
		slices.SortFunc(all, func(a, b *returns.Return) int { return id.Compare(b.ID, a.ID) })
		out = paginate(all, f.Page)
		return nil
	})
	return out, err
}

func (r *ReturnRepo) SetStatus(ctx context.Context, returnID id.ID, status returns.Status, batchID *id.ID) error {
	return r.s.view(ctx, func(d *data) error {
		ret, ok := d.returns[returnID]
		if !ok {
			return apperror.NewNotFound("return", returnID)
		}
		ret.Status = status
		ret.BatchID = batchID
		ret.Touch()
		d.returns[returnID] = ret
		return nil
	})
}

func (r *ReturnRepo) SumOpen(ctx context.Context, orderItemID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	err := r.s.view(ctx, func(d *data) error {
		for _, ret := range d.returns {
			if ret.OrderItemID == orderItemID && ret.Status != returns.StatusRejected {
				sum += ret.Qty
			}
		}
		return nil
	})
	return sum, err
}
