package memory

import (
	"context"
	"maps"
	"slices"

	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/id"
	"stockalloc/internal/domain"
	"stockalloc/internal/domain/txlog"
	"stockalloc/internal/domain/undo"
)

// EntryRepo implements txlog.Repository. Entries can only be appended.
type EntryRepo struct{ s *Store }

func (r *EntryRepo) Append(ctx context.Context, e *txlog.Entry) error {
	return r.s.view(ctx, func(d *data) error {
		return d.appendEntry(e)
	})
}

// AppendBatch appends all entries or none.
func (r *EntryRepo) AppendBatch(ctx context.Context, entries []*txlog.Entry) error {
	return r.s.view(ctx, func(d *data) error {
		for _, e := range entries {
			if _, ok := d.entryIndex[e.ID]; ok {
				return apperror.NewImmutable("transaction log entry", e.ID)
			}
		}
		for _, e := range entries {
			if err := d.appendEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *data) appendEntry(e *txlog.Entry) error {
	if _, ok := d.entryIndex[e.ID]; ok {
		return apperror.NewImmutable("transaction log entry", e.ID)
	}
	stored := *e
	stored.Meta = maps.Clone(e.Meta)
	d.entryIndex[e.ID] = len(d.entries)
	d.entries = append(d.entries, stored)
	return nil
}

func (r *EntryRepo) GetByID(ctx context.Context, entryID id.ID) (*txlog.Entry, error) {
	var out *txlog.Entry
	err := r.s.view(ctx, func(d *data) error {
		i, ok := d.entryIndex[entryID]
		if !ok {
			return apperror.NewNotFound("transaction log entry", entryID)
		}
		out = cloneEntry(d.entries[i])
		return nil
	})
	return out, err
}

func (r *EntryRepo) List(ctx context.Context, f txlog.Filter) (domain.ListResult[*txlog.Entry], error) {
	var out domain.ListResult[*txlog.Entry]
	err := r.s.view(ctx, func(d *data) error {
		var all []*txlog.Entry
		for i := len(d.entries) - 1; i >= 0; i-- {
			e := d.entries[i]
			if matchEntry(&e, f) {
				all = append(all, cloneEntry(e))
			}
		}
		out = paginate(all, f.Page)
		return nil
	})
	return out, err
}

func cloneEntry(e txlog.Entry) *txlog.Entry {
	e.Meta = maps.Clone(e.Meta)
	return &e
}

func matchEntry(e *txlog.Entry, f txlog.Filter) bool {
	same := func(want, got *id.ID) bool {
		return want == nil || (got != nil && *got == *want)
	}
	if !same(f.BatchID, e.BatchID) || !same(f.OrderID, e.OrderID) ||
		!same(f.OrderItemID, e.OrderItemID) || !same(f.ShipmentID, e.ShipmentID) {
		return false
	}
	if f.ItemID != nil && e.ItemID != *f.ItemID {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, e.Type)
}

// StackRepo implements undo.Stack over one of the two history stacks.
type StackRepo struct {
	s    *Store
	redo bool
}

func (r *StackRepo) stack(d *data) *[]undo.Record {
	if r.redo {
		return &d.redoStack
	}
	return &d.undoStack
}

func (r *StackRepo) Push(ctx context.Context, rec *undo.Record) error {
	return r.s.view(ctx, func(d *data) error {
		st := r.stack(d)
		*st = append(*st, *rec)
		return nil
	})
}

func (r *StackRepo) Pop(ctx context.Context) (*undo.Record, error) {
	var out *undo.Record
	err := r.s.view(ctx, func(d *data) error {
		st := r.stack(d)
		if len(*st) == 0 {
			return nil
		}
		top := (*st)[len(*st)-1]
		*st = (*st)[:len(*st)-1]
		out = &top
		return nil
	})
	return out, err
}

func (r *StackRepo) List(ctx context.Context, limit int) ([]*undo.Record, error) {
	var out []*undo.Record
	err := r.s.view(ctx, func(d *data) error {
		st := *r.stack(d)
		for i := len(st) - 1; i >= 0; i-- {
			if limit > 0 && len(out) == limit {
				break
			}
			out = append(out, ptr(st[i]))
		}
		return nil
	})
	return out, err
}

func (r *StackRepo) Len(ctx context.Context) (int, error) {
	var n int
	err := r.s.view(ctx, func(d *data) error {
		n = len(*r.stack(d))
		return nil
	})
	return n, err
}
