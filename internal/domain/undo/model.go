// Package undo keeps the undo and redo history of reversible operations and
// dispatches each record to the handler registered for its operation type.
package undo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockalloc/internal/core/id"
)

// OperationType names a reversible operation.
type OperationType string

const (
	OpAllocation OperationType = "allocation"
	OpReceive    OperationType = "receive"
	OpShip       OperationType = "ship"
	OpRestock    OperationType = "restock"
)

// Record is one entry of either stack.
type Record struct {
	ID            id.ID           `db:"id" json:"id"`
	OperationType OperationType   `db:"operation_type" json:"operationType"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Actor         string          `db:"actor" json:"actor"`
	Description   string          `db:"description" json:"description"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// Decode unmarshals the payload into dst.
func (r *Record) Decode(dst any) error {
	if err := json.Unmarshal(r.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.OperationType, err)
	}
	return nil
}

// Stack is a LIFO store of records.
type Stack interface {
	Push(ctx context.Context, rec *Record) error

	// Pop removes and returns the top record, or nil when the stack is empty.
	Pop(ctx context.Context) (*Record, error)

	// List returns up to limit records, top first.
	List(ctx context.Context, limit int) ([]*Record, error)

	Len(ctx context.Context) (int, error)
}

// Outcome is what a handler reports back to the coordinator.
type Outcome struct {
	Message string

	// Payload replaces the record payload pushed onto the opposite stack.
	// Leave nil to reuse the original payload.
	Payload any
}

// Handler reverses and replays one operation type.
type Handler interface {
	Undo(ctx context.Context, rec *Record) (Outcome, error)
	Redo(ctx context.Context, rec *Record) (Outcome, error)
}
