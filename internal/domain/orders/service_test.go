package orders_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/app/apptest"
	"stockalloc/internal/core/apperror"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/domain/orders"
	"stockalloc/internal/domain/txlog"
)

var qty = apptest.Qty

func allocatedOrder(t *testing.T, env *apptest.Env, threshold int64) (*orders.Order, []*inventory.Batch) {
	t.Helper()
	item, err := env.Inventory.CreateItem(env.Ctx(), "SKU-A", "Widget", "", qty(threshold))
	require.NoError(t, err)
	b := []*inventory.Batch{
		env.Batch(t, item, "LOT-5", 50, 5),
		env.Batch(t, item, "LOT-30", 100, 30),
	}
	o := env.Order(t, apptest.Line(item, 120))
	_, err = env.Allocation.AllocateOrder(env.Ctx(), o.ID)
	require.NoError(t, err)
	return o, b
}

func TestCreate_NumbersDaily(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")

	first := env.Order(t, apptest.Line(item, 1))
	second := env.Order(t, apptest.Line(item, 2))

	assert.Equal(t, "ORD-20260315-0001", first.OrderNo)
	assert.Equal(t, "ORD-20260315-0002", second.OrderNo)
	assert.Equal(t, orders.StatusNew, first.Status)
	assert.Equal(t, 1, first.Items[0].LineNo)
	assert.Equal(t, "SKU-A", first.Items[0].SKU)
}

func TestCreate_Validation(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")

	tests := []struct {
		name     string
		customer string
		lines    []orders.LineInput
		code     string
	}{
		{"missing customer", "", []orders.LineInput{apptest.Line(item, 1)}, apperror.CodeValidation},
		{"zero quantity", "C1", []orders.LineInput{apptest.Line(item, 0)}, apperror.CodeValidation},
		{"duplicate item", "C1", []orders.LineInput{apptest.Line(item, 1), apptest.Line(item, 2)}, apperror.CodeDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Orders.Create(env.Ctx(), tt.customer, tt.lines)
			assert.True(t, apperror.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestAddLine_OnlyWhileNew(t *testing.T) {
	env := apptest.New(t)
	o, _ := allocatedOrder(t, env, 0)
	other := env.Item(t, "SKU-B")

	_, err := env.Orders.AddLine(env.Ctx(), o.ID, apptest.Line(other, 1))
	assert.True(t, apperror.IsInvalidState(err))

	fresh := env.Order(t, apptest.Line(other, 1))
	third := env.Item(t, "SKU-C")
	line, err := env.Orders.AddLine(env.Ctx(), fresh.ID, apptest.Line(third, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, line.LineNo)
}

func TestShip(t *testing.T) {
	env := apptest.New(t)
	o, b := allocatedOrder(t, env, 200)

	res, err := env.Orders.Ship(env.Ctx(), o.ID, orders.ShipInput{Carrier: "DHL", Notes: "fragile"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Shipment.ShipmentNo, "SHIP-"+o.OrderNo+"-"))
	assert.NotEmpty(t, res.Shipment.TrackingNo)
	assert.Equal(t, orders.StatusShipped, res.Order.Status)
	require.Len(t, res.Consumptions, 2)
	assert.Equal(t, qty(50), res.Consumptions[0].Qty)
	assert.Equal(t, qty(70), res.Consumptions[1].Qty)

	// stock left the batches at reservation time
	assert.Equal(t, qty(0), env.Available(t, b[0].ID))
	assert.Equal(t, qty(30), env.Available(t, b[1].ID))

	allocs, err := env.Orders.Allocations(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)

	got, err := env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(120), got.Items[0].QtyShipped)

	page, err := env.TxLog.List(env.Ctx(), txlog.Filter{ShipmentID: &res.Shipment.ID})
	require.NoError(t, err)
	var total types.Quantity
	for _, e := range page.Items {
		assert.Equal(t, txlog.TypeShip, e.Type)
		total += e.Qty
	}
	assert.Equal(t, qty(-120), total)

	assert.Len(t, env.Repos.Events.Events(env.Ctx(), notify.EventShipmentCreated), 1)
	assert.Len(t, env.Repos.Events.Events(env.Ctx(), notify.EventOrderFulfilled), 1)
	assert.Len(t, env.Repos.Events.Events(env.Ctx(), notify.EventStockLow), 1)
}

func TestShip_RequiresAllocatedOrder(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	o := env.Order(t, apptest.Line(item, 5))

	_, err := env.Orders.Ship(env.Ctx(), o.ID, orders.ShipInput{})
	assert.True(t, apperror.IsInvalidState(err))
}

func TestUndoShip_RestoresAllocations(t *testing.T) {
	env := apptest.New(t)
	o, b := allocatedOrder(t, env, 0)
	_, err := env.Orders.Advance(env.Ctx(), o.ID, orders.StatusPicked)
	require.NoError(t, err)

	before, err := env.Orders.Allocations(env.Ctx(), o.ID)
	require.NoError(t, err)

	_, err = env.Orders.Ship(env.Ctx(), o.ID, orders.ShipInput{Carrier: "UPS"})
	require.NoError(t, err)

	res, err := env.Undo.PerformUndo(env.Ctx(), 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Messages[0], "Undid shipment"), res.Messages[0])

	got, err := env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPicked, got.Status)
	assert.True(t, got.Items[0].QtyShipped.IsZero())
	assert.Equal(t, qty(120), got.Items[0].QtyAllocated)

	after, err := env.Orders.Allocations(env.Ctx(), o.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Qty, after[i].Qty)
	}
	shipments, err := env.Orders.Shipments(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Empty(t, shipments)
	env.RequireLedgerConsistent(t, b...)

	_, err = env.Undo.PerformRedo(env.Ctx(), 1)
	require.NoError(t, err)
	got, err = env.Orders.Get(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)
	assert.Equal(t, qty(120), got.Items[0].QtyShipped)
}

func TestAdvance(t *testing.T) {
	env := apptest.New(t)
	o, _ := allocatedOrder(t, env, 0)

	_, err := env.Orders.Advance(env.Ctx(), o.ID, orders.StatusPacked)
	assert.True(t, apperror.IsInvalidState(err))

	got, err := env.Orders.Advance(env.Ctx(), o.ID, orders.StatusPicked)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPicked, got.Status)

	got, err = env.Orders.Advance(env.Ctx(), o.ID, orders.StatusPacked)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPacked, got.Status)

	_, err = env.Orders.Ship(env.Ctx(), o.ID, orders.ShipInput{})
	require.NoError(t, err)

	got, err = env.Orders.Advance(env.Ctx(), o.ID, orders.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, got.Status)
}

func TestCancel_NewOrder(t *testing.T) {
	env := apptest.New(t)
	item := env.Item(t, "SKU-A")
	o := env.Order(t, apptest.Line(item, 5))

	got, err := env.Orders.Cancel(env.Ctx(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)

	_, err = env.Orders.Cancel(env.Ctx(), o.ID)
	assert.True(t, apperror.IsInvalidState(err))
}
