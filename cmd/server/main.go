package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/rl1809/cart-checkout/internal/adapter/handler"
	"github.com/rl1809/cart-checkout/internal/adapter/handler/cartrpc"
	"github.com/rl1809/cart-checkout/internal/adapter/storage"
	"github.com/rl1809/cart-checkout/internal/config"
	"github.com/rl1809/cart-checkout/internal/core/service"
	"github.com/rl1809/cart-checkout/internal/logger"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{ServiceName: "cart-checkout"})
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Options{
		ServiceName: "cart-checkout",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	// Initialize adapters
	redisAdapter := storage.NewRedisAdapter(rdb,
		storage.WithCartTTL(cfg.Redis.CartTTL),
		storage.WithCheckoutGuardTTL(cfg.Checkout.GuardTTL),
		storage.WithRedisLogger(log),
	)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	graph, closeGraph := openGraph(ctx, cfg.Neo4j, mysqlAdapter, log)
	defer closeGraph()

	// Initialize services
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics.New(reg)),
		service.WithStorePolicy(service.StorePolicy{
			Timeout:     cfg.App.StoreTimeout,
			ReadRetries: cfg.App.ReadRetries,
			RetryDelay:  cfg.App.RetryDelay,
		}),
	}
	cartService := service.NewCartService(redisAdapter, mysqlAdapter, opts...)
	checkoutOpts := opts
	if mem, ok := graph.(*storage.MemoryGraph); ok {
		checkoutOpts = append(slices.Clone(opts), service.WithOrderRecorder(mem))
	}
	checkoutService := service.NewCheckoutService(redisAdapter, mysqlAdapter, mysqlAdapter, checkoutOpts...)
	recommendationService := service.NewRecommendationService(redisAdapter, graph, cfg.Checkout.RecommendationLimit, opts...)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(cartService, checkoutService, recommendationService, log)
	cartrpc.RegisterCartServiceServer(grpcServer, grpcHandler)

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.App.GRPCAddr).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", cfg.App.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, recommendationService, log)
	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.App.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownWait)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}

// openGraph connects to Neo4j when a URI is configured. Otherwise the
// purchase graph is built in process from the order history.
func openGraph(ctx context.Context, cfg config.Neo4jConfig, history *storage.MySQLAdapter, log zerolog.Logger) (port.PurchaseGraph, func()) {
	if cfg.URI == "" {
		purchases, err := history.PurchaseHistory(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load purchase history")
		}
		log.Info().Int("purchases", len(purchases)).Msg("using in-process purchase graph")
		return storage.NewMemoryGraph(purchases...), func() {}
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create neo4j driver")
	}
	adapter := storage.NewNeo4jAdapter(driver, cfg.Database)
	if err := adapter.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect neo4j")
	}
	log.Info().Str("uri", cfg.URI).Msg("connected to neo4j")

	return adapter, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := driver.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("closing neo4j driver")
		}
	}
}
