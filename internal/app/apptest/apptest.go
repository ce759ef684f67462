// Package apptest builds a fully wired service graph over the memory store
// for tests.
package apptest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockalloc/internal/app"
	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/id"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/infrastructure/lock"
	"stockalloc/internal/infrastructure/storage/memory"
)

// Actor is recorded on everything an Env does.
const Actor = "tester"

// NoExpiry passed as expiry days receives a batch without expiry date.
const NoExpiry = -1 << 31

// Env is a wired service graph with direct access to its store.
type Env struct {
	*app.Services
	Store *memory.Store
	Repos memory.Repositories
	Now   time.Time
}

// New creates an Env. Options are applied after the defaults.
func New(t testing.TB, opts ...func(*app.Options)) *Env {
	t.Helper()

	st := memory.New()
	env := &Env{
		Store: st,
		Repos: st.Repositories(),
		Now:   time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	o := app.Options{
		TxManager: st,
		Repos:     app.MemoryRepositories(st),
		Publisher: env.Repos.Events,
		Locker:    lock.NewLocal(),
		LockTTL:   5 * time.Second,
		Now:       func() time.Time { return env.Now },
	}
	for _, opt := range opts {
		opt(&o)
	}
	env.Services = app.New(o)
	return env
}

// Ctx returns a context carrying the test actor.
func (e *Env) Ctx() context.Context {
	return appctx.WithActor(context.Background(), &appctx.Actor{ID: Actor, Name: Actor})
}

// Qty converts whole units.
func Qty(n int64) types.Quantity {
	return types.NewQuantity(n)
}

// Item creates an item with the given SKU.
func (e *Env) Item(t testing.TB, sku string) *inventory.Item {
	t.Helper()
	it, err := e.Inventory.CreateItem(e.Ctx(), sku, "Item "+sku, "", 0)
	require.NoError(t, err)
	return it
}

// Batch receives qty units expiring days after Env.Now, or never for NoExpiry.
func (e *Env) Batch(t testing.TB, item *inventory.Item, lot string, qty int64, days int) *inventory.Batch {
	t.Helper()
	in := inventory.ReceiveInput{ItemID: item.ID, LotNo: lot, Qty: Qty(qty)}
	if days != NoExpiry {
		exp := e.Now.AddDate(0, 0, days)
		in.Expiry = &exp
	}
	b, err := e.Inventory.ReceiveBatch(e.Ctx(), in)
	require.NoError(t, err)
	return b
}

// Order creates a NEW order with one line per (item, qty) pair.
func (e *Env) Order(t testing.TB, lines ...orders.LineInput) *orders.Order {
	t.Helper()
	o, err := e.Orders.Create(e.Ctx(), fmt.Sprintf("CUST-%d", len(lines)), lines)
	require.NoError(t, err)
	return o
}

// Line builds an order line.
func Line(item *inventory.Item, qty int64) orders.LineInput {
	return orders.LineInput{ItemID: item.ID, Qty: Qty(qty)}
}

// Available reads a batch's current available quantity.
func (e *Env) Available(t testing.TB, batchID id.ID) types.Quantity {
	t.Helper()
	b, err := e.Repos.Batches.GetByID(context.Background(), batchID)
	require.NoError(t, err)
	return b.AvailableQty
}

// RequireLedgerConsistent checks that for every batch the allocations plus
// available quantity add up to the received quantity. It holds only while
// nothing has shipped.
func (e *Env) RequireLedgerConsistent(t testing.TB, batches ...*inventory.Batch) {
	t.Helper()
	ctx := context.Background()
	for _, b := range batches {
		cur, err := e.Repos.Batches.GetByID(ctx, b.ID)
		require.NoError(t, err)

		var held types.Quantity
		list, err := e.Repos.Orders.List(ctx, orders.Filter{})
		require.NoError(t, err)
		for _, o := range list.Items {
			allocs, err := e.Repos.Allocations.ListByOrder(ctx, o.ID)
			require.NoError(t, err)
			for _, a := range allocs {
				if a.BatchID == b.ID {
					held += a.Qty
				}
			}
		}
		require.Equal(t, cur.ReceivedQty, cur.AvailableQty+held, "batch %s", cur.LotNo)
	}
}
