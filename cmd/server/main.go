package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/chickflow/allocator/internal/adapter/handler"
	"github.com/chickflow/allocator/internal/adapter/notify"
	"github.com/chickflow/allocator/internal/adapter/storage"
	"github.com/chickflow/allocator/internal/config"
	"github.com/chickflow/allocator/internal/core/service"
	"github.com/chickflow/allocator/internal/port"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Error("failed to open mysql", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping mysql", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis")

	store := storage.NewMySQLStore(db)
	locker := storage.NewRedisLocker(rdb, cfg.RunLockTTL)

	var notifier port.Notifier
	var kafkaDispatcher *notify.KafkaDispatcher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaDispatcher = notify.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		notifier = kafkaDispatcher
		logger.Info("notification intents publish to kafka", "topic", cfg.KafkaTopic)
	} else {
		notifier = notify.NewLogDispatcher(logger)
		logger.Info("no kafka brokers configured, notifications are logged only")
	}

	engine := service.NewAllocationEngine(store, locker, service.EngineConfig{
		MaxPerCustomer:     cfg.MaxPerCustomer,
		PickupDeadlineHour: cfg.PickupDeadlineHour,
		WaitingPeriodDays:  cfg.WaitingPeriodDays,
	}, logger)

	httpHandler := handler.NewHTTPHandler(engine, notifier, logger)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	if kafkaDispatcher != nil {
		if err := kafkaDispatcher.Close(); err != nil {
			logger.Warn("failed to close kafka writer", "error", err)
		}
	}

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
