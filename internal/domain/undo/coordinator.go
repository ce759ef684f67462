package undo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockalloc/internal/core/apperror"
	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/lock"
	"stockalloc/internal/core/tx"
	"stockalloc/pkg/logger"
)

var tracer = otel.Tracer("stockalloc/undo")

// historyLockKey serializes undo and redo across processes so records are
// replayed strictly in stack order.
const historyLockKey = "undo-history"

const redoPrefix = "Redo: "

// direction selects which stack is popped and which handler method runs.
type direction struct {
	verb  string // "undo" / "redo"
	title string // "Undo" / "Redo"
	from  func(c *Coordinator) Stack
	to    func(c *Coordinator) Stack
	run   func(h Handler, ctx context.Context, rec *Record) (Outcome, error)
}

var (
	undoDirection = direction{
		verb:  "undo",
		title: "Undo",
		from:  func(c *Coordinator) Stack { return c.undo },
		to:    func(c *Coordinator) Stack { return c.redo },
		run:   Handler.Undo,
	}
	redoDirection = direction{
		verb:  "redo",
		title: "Redo",
		from:  func(c *Coordinator) Stack { return c.redo },
		to:    func(c *Coordinator) Stack { return c.undo },
		run:   Handler.Redo,
	}
)

// Coordinator owns both stacks and the handler registry.
type Coordinator struct {
	txm      tx.Manager
	undo     Stack
	redo     Stack
	handlers map[OperationType]Handler
	locker   lock.Locker
	lockTTL  time.Duration
}

// NewCoordinator creates a coordinator over the given stacks. Each record is
// popped, replayed and moved to the opposite stack in one transaction of txm.
// locker may be nil when a single process owns the history.
func NewCoordinator(txm tx.Manager, undoStack, redoStack Stack, locker lock.Locker, lockTTL time.Duration) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Coordinator{
		txm:      txm,
		undo:     undoStack,
		redo:     redoStack,
		handlers: make(map[OperationType]Handler),
		locker:   locker,
		lockTTL:  lockTTL,
	}
}

// Register binds a handler to an operation type.
func (c *Coordinator) Register(op OperationType, h Handler) {
	c.handlers[op] = h
}

// Result holds one message per processed record.
type Result struct {
	Messages []string `json:"messages"`
}

// PerformUndo pops up to count records from the undo stack and reverses them.
// A failing record stays on its stack unchanged and processing stops; the
// returned error is an UNDO_REDO_FAILED AppError.
func (c *Coordinator) PerformUndo(ctx context.Context, count int) (Result, error) {
	return c.perform(ctx, undoDirection, count)
}

// PerformRedo is the mirror of PerformUndo.
func (c *Coordinator) PerformRedo(ctx context.Context, count int) (Result, error) {
	return c.perform(ctx, redoDirection, count)
}

func (c *Coordinator) perform(ctx context.Context, d direction, count int) (Result, error) {
	ctx, span := tracer.Start(ctx, "undo.Perform"+d.title)
	defer span.End()
	span.SetAttributes(attribute.Int("undo.count", count))

	if count < 1 {
		count = 1
	}

	if c.locker != nil {
		l, err := c.locker.Obtain(ctx, historyLockKey, c.lockTTL)
		if err != nil {
			return Result{}, fmt.Errorf("obtain history lock: %w", err)
		}
		defer func() {
			if err := l.Release(context.Background()); err != nil {
				logger.Warn(ctx, "release history lock", "error", err)
			}
		}()
	}

	var res Result
	for i := 0; i < count; i++ {
		st, err := c.step(ctx, d)
		var herr *handlerError
		if errors.As(err, &herr) {
			span.RecordError(herr.err)
			span.SetStatus(codes.Error, herr.err.Error())
			logger.Error(ctx, d.verb+" failed", "operation", herr.rec.OperationType, "record_id", herr.rec.ID, "error", herr.err)

			msg := fmt.Sprintf("%s failed: %s", d.title, errorMessage(herr.err))
			res.Messages = append(res.Messages, msg)
			return res, apperror.NewUndoRedo(msg).
				WithDetail("operation", string(herr.rec.OperationType)).
				WithDetail("messages", res.Messages).
				WithCause(herr.err)
		}
		if err != nil {
			return res, err
		}

		switch {
		case st.rec == nil:
			res.Messages = append(res.Messages, fmt.Sprintf("No more operations to %s", d.verb))
			return res, nil
		case st.unhandled:
			logger.Warn(ctx, "no handler for operation type", "direction", d.verb, "operation", st.rec.OperationType)
			res.Messages = append(res.Messages, fmt.Sprintf("Cannot %s operation: %s", d.verb, st.rec.OperationType))
		default:
			res.Messages = append(res.Messages, st.out.Message)
			logger.Info(ctx, d.verb+" applied", "operation", st.rec.OperationType, "record_id", st.rec.ID, "message", st.out.Message)
		}
	}
	return res, nil
}

// stepResult describes one committed step. rec is nil when the stack was
// empty.
type stepResult struct {
	rec       *Record
	out       Outcome
	unhandled bool
}

// handlerError marks a failure of the handler itself, as opposed to the
// stacks.
type handlerError struct {
	rec *Record
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }

func (e *handlerError) Unwrap() error { return e.err }

// step pops one record, replays it and pushes the opposite record. Any
// failure rolls the whole step back, leaving the record on its stack.
func (c *Coordinator) step(ctx context.Context, d direction) (stepResult, error) {
	var st stepResult
	err := c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		st = stepResult{}
		rec, err := d.from(c).Pop(ctx)
		if err != nil {
			return fmt.Errorf("pop %s stack: %w", d.verb, err)
		}
		if rec == nil {
			return nil
		}
		st.rec = rec

		h, ok := c.handlers[rec.OperationType]
		if !ok {
			st.unhandled = true
			return nil
		}

		out, err := d.run(h, WithReplay(ctx), rec)
		if err != nil {
			return &handlerError{rec: rec, err: err}
		}
		st.out = out
		return c.pushOpposite(ctx, d, rec, out)
	})
	return st, err
}

func (c *Coordinator) pushOpposite(ctx context.Context, d direction, rec *Record, out Outcome) error {
	payload := any(rec.Payload)
	if out.Payload != nil {
		payload = out.Payload
	}

	description := strings.TrimPrefix(rec.Description, redoPrefix)
	if d.verb == "undo" {
		description = redoPrefix + description
	}

	next, err := NewRecord(rec.OperationType, payload, appctx.ActorName(ctx), description)
	if err != nil {
		return err
	}
	if err := d.to(c).Push(ctx, next); err != nil {
		return fmt.Errorf("push %s record: %w", d.verb, err)
	}
	return nil
}

// History returns up to limit records of each stack, top first.
func (c *Coordinator) History(ctx context.Context, limit int) (undoRecs, redoRecs []*Record, err error) {
	if limit <= 0 {
		limit = 20
	}
	if undoRecs, err = c.undo.List(ctx, limit); err != nil {
		return nil, nil, fmt.Errorf("list undo stack: %w", err)
	}
	if redoRecs, err = c.redo.List(ctx, limit); err != nil {
		return nil, nil, fmt.Errorf("list redo stack: %w", err)
	}
	return undoRecs, redoRecs, nil
}

func errorMessage(err error) string {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
