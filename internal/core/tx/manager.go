// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; postgres and memory storage
// provide the implementations.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
//
// The active transaction travels in ctx. Repositories called with that ctx
// participate in it; nested RunInTransaction calls reuse it.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back, otherwise committed.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
