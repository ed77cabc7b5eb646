package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/logger"
)

const (
	productID    = "stress-item"
	productName  = "Stress Test Item"
	initialStock = 20
	totalCarts   = 50
	sameCartRuns = 10
)

func main() {
	log := logger.New(logger.Options{ServiceName: "cart-stress", Format: "console"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	// Reset the stress product
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, category, stock)
		VALUES (?, ?, '1.00', 'stress', ?)
		ON DUPLICATE KEY UPDATE stock = VALUES(stock)`,
		productID, productName, initialStock,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to reset product")
	}

	carts := storage.NewRedisAdapter(rdb)
	inventory := storage.NewMySQLAdapter(db)
	opts := []service.Option{service.WithLogger(log.Level(zerolog.WarnLevel))}
	cartService := service.NewCartService(carts, inventory, opts...)
	checkoutService := service.NewCheckoutService(carts, inventory, inventory, opts...)

	runID := time.Now().UnixNano()
	cartIDs := make([]string, totalCarts)
	for i := range cartIDs {
		cartIDs[i] = fmt.Sprintf("stress-%d-%d", runID, i)
		if _, err := cartService.AddItem(ctx, cartIDs[i], productID); err != nil {
			log.Fatal().Err(err).Str("cart_id", cartIDs[i]).Msg("failed to fill cart")
		}
	}

	// Many carts racing for one product
	var successCount, refusedCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for _, cartID := range cartIDs {
		wg.Add(1)
		go func(cartID string) {
			defer wg.Done()

			_, err := checkoutService.Checkout(ctx, cartID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrPartialCheckout):
				refusedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Error().Err(err).Str("cart_id", cartID).Msg("checkout failed")
			}
		}(cartID)
	}
	wg.Wait()
	elapsed := time.Since(start)

	product, err := inventory.Snapshot(ctx, productID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read final stock")
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Carts:            %d\n", totalCarts)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Out of stock:     %d\n", refusedCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Final Stock:      %d\n", product.Stock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if successCount.Load() > initialStock {
		fmt.Printf("FAIL: %d checkouts succeeded for %d units\n", successCount.Load(), initialStock)
		failed = true
	}
	if int(successCount.Load())+product.Stock != initialStock {
		fmt.Printf("FAIL: stock %d does not match %d successful checkouts\n", product.Stock, successCount.Load())
		failed = true
	}
	if !failed {
		fmt.Println("PASS: no oversell")
	}

	if !sameCartRace(ctx, cartService, checkoutService, fmt.Sprintf("stress-%d-same", runID)) {
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

// sameCartRace fires concurrent checkouts at one cart; at most one may
// commit it.
func sameCartRace(ctx context.Context, cart *service.CartService, checkout *service.CheckoutService, cartID string) bool {
	if _, err := cart.AddItem(ctx, cartID, productID); err != nil {
		// stock already gone, nothing to race for
		fmt.Printf("SKIP: same-cart race (%v)\n", err)
		return true
	}

	var orders atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < sameCartRuns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, _ := checkout.Checkout(ctx, cartID)
			if result.Order != nil {
				orders.Add(1)
			}
		}()
	}
	wg.Wait()

	if orders.Load() > 1 {
		fmt.Printf("FAIL: same cart committed %d orders\n", orders.Load())
		return false
	}
	fmt.Println("PASS: same cart committed at most once")
	return true
}
