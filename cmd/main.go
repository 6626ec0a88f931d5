package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/taskhive/task-marketplace/settlement-service/internal/api"
	"github.com/taskhive/task-marketplace/settlement-service/internal/config"
	"github.com/taskhive/task-marketplace/settlement-service/internal/fees"
	"github.com/taskhive/task-marketplace/settlement-service/internal/gateway"
	"github.com/taskhive/task-marketplace/settlement-service/internal/handlers"
	"github.com/taskhive/task-marketplace/settlement-service/internal/repository"
	"github.com/taskhive/task-marketplace/settlement-service/internal/service"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("settlement-service"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Settlement Service")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize stores
	payments := repository.NewPaymentRepository(db)
	tasks := repository.NewTaskStore(db)
	balances := repository.NewBalanceStore(db)
	revenue := repository.NewRevenueStore(db)
	for _, init := range []func() error{payments.InitDB, tasks.InitDB, balances.InitDB, revenue.InitDB} {
		if err := init(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
	}
	txManager := repository.NewTxManager(db)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	locker := service.NewRedisLocker(redisClient)

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Connect to Kafka
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    "payment.state.changed",
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()
	events := service.NewEventPublisher(kafkaWriter, nc)

	// Wire the settlement services
	calc := fees.NewCalculator(cfg.Fees)
	gw := gateway.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayTimeout)
	ledger := service.NewLedger(balances, revenue)
	processor := service.NewPaymentProcessor(payments, tasks, ledger, gw, txManager, locker, calc, events, cfg.GatewayTimeout)
	refunds := service.NewRefundProcessor(payments, tasks, ledger, gw, txManager, locker, calc, events, cfg.GatewayTimeout)
	stats := service.NewStatsAggregator(payments)

	// Start the reconciler for payments stranded by gateway timeouts
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	reconciler := service.NewReconciler(payments, tasks, processor, cfg.ReconcileInterval, cfg.ReconcileAfter)
	go reconciler.Run(reconcilerCtx)

	// Setup router
	paymentHandler := handlers.NewPaymentHandler(payments, processor, refunds, stats)
	r := api.NewRouter(paymentHandler)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Settlement Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	stopReconciler()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
