// Package main seeds a demo dataset and prints a development token.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"stockalloc/internal/app"
	"stockalloc/internal/config"
	"stockalloc/internal/core/apperror"
	appctx "stockalloc/internal/core/context"
	"stockalloc/internal/core/types"
	"stockalloc/internal/domain/auth"
	"stockalloc/internal/domain/inventory"
	"stockalloc/internal/domain/orders"
	"stockalloc/pkg/logger"
)

const demoSKU = "DEMO-MILK-1L"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	rt, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		log.Fatalw("bootstrap failed", "error", err)
	}
	defer rt.Close()

	if rt.Memory != nil {
		log.Warn("seeding the memory store, data is discarded on exit")
	}

	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "seed", Name: "seed"})
	if err := seedDemo(ctx, rt.Services, log, time.Now()); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Info("JWT_SECRET not set, skipping dev token")
		return
	}
	tokens := auth.NewTokenService(auth.DefaultConfig(cfg.Auth.JWTSecret))
	token, exp, err := tokens.Issue("admin", "admin", []string{"admin"})
	if err != nil {
		log.Fatalw("failed to issue token", "error", err)
	}
	log.Infow("dev token issued", "actor", "admin", "expires_at", exp.Format(time.RFC3339))
	fmt.Println(token)
}

// seedDemo receives one item in two lots and allocates an order that spans
// both. It is a no-op when the demo item already exists.
func seedDemo(ctx context.Context, svc *app.Services, log *logger.Logger, now time.Time) error {
	if _, err := svc.Inventory.GetItemBySKU(ctx, demoSKU); err == nil {
		log.Infow("demo data already present", "sku", demoSKU)
		return nil
	} else if !apperror.IsNotFound(err) {
		return err
	}

	item, err := svc.Inventory.CreateItem(ctx, demoSKU, "Milk 1L", "Demo item", types.NewQuantity(20))
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	lots := []struct {
		lot  string
		qty  int64
		days int
	}{
		{"L-NEAR", 50, 5},
		{"L-LATER", 100, 31},
	}
	for _, l := range lots {
		exp := inventory.DateOf(now).AddDate(0, 0, l.days)
		b, err := svc.Inventory.ReceiveBatch(ctx, inventory.ReceiveInput{
			ItemID: item.ID,
			LotNo:  l.lot,
			Qty:    types.NewQuantity(l.qty),
			Expiry: &exp,
		})
		if err != nil {
			return fmt.Errorf("receive %s: %w", l.lot, err)
		}
		log.Infow("batch received", "lot_no", b.LotNo, "qty", b.ReceivedQty.String(), "expiry", exp.Format("2006-01-02"))
	}

	o, err := svc.Orders.Create(ctx, "DEMO-CUSTOMER", []orders.LineInput{
		{ItemID: item.ID, Qty: types.NewQuantity(75)},
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	rep, err := svc.Allocation.AllocateOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("allocate %s: %w", o.OrderNo, err)
	}
	for _, line := range rep.Lines {
		for _, d := range line.Allocations {
			log.Infow("allocated", "order_no", rep.OrderNo, "lot_no", d.BatchLot, "qty", d.Qty.String())
		}
	}
	log.Infow("demo order allocated", "order_no", rep.OrderNo, "status", rep.Status, "outcome", rep.Outcome)
	return nil
}
