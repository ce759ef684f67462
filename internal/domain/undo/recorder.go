package undo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/id"
	"stockalloc/pkg/logger"
)

type replayKey struct{}

// WithReplay marks ctx as running inside an undo or redo handler.
// Operations re-run by a handler must not record themselves again.
func WithReplay(ctx context.Context) context.Context {
	return context.WithValue(ctx, replayKey{}, true)
}

// IsReplay reports whether ctx is running inside a handler.
func IsReplay(ctx context.Context) bool {
	v, _ := ctx.Value(replayKey{}).(bool)
	return v
}

// Recorder pushes forward operations onto the undo stack.
type Recorder struct {
	stack Stack
}

// NewRecorder creates a recorder writing to stack.
func NewRecorder(stack Stack) *Recorder {
	return &Recorder{stack: stack}
}

// Push records a completed operation. It is a no-op during replay.
func (r *Recorder) Push(ctx context.Context, op OperationType, payload any, description string) error {
	if r == nil || IsReplay(ctx) {
		return nil
	}
	rec, err := NewRecord(op, payload, appctx.ActorName(ctx), description)
	if err != nil {
		return err
	}
	if err := r.stack.Push(ctx, rec); err != nil {
		return fmt.Errorf("push undo record: %w", err)
	}
	logger.Debug(ctx, "pushed undo operation", "operation", op, "description", description)
	return nil
}

// NewRecord builds a record with a fresh id.
func NewRecord(op OperationType, payload any, actor, description string) (*Record, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:            id.New(),
		OperationType: op,
		Payload:       raw,
		Actor:         actor,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal undo payload: %w", err)
	}
	return raw, nil
}
