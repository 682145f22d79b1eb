package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/cascade/kafkaqueue"
	"github.com/taskgraph/scheduler/internal/cascade/memqueue"
	"github.com/taskgraph/scheduler/internal/cascade/redisqueue"
	"github.com/taskgraph/scheduler/internal/config"
	"github.com/taskgraph/scheduler/internal/database"
	"github.com/taskgraph/scheduler/internal/httpapi"
	"github.com/taskgraph/scheduler/internal/logger"
	"github.com/taskgraph/scheduler/internal/scheduler"
	"github.com/taskgraph/scheduler/internal/store"
	"github.com/taskgraph/scheduler/internal/store/memstore"
	"github.com/taskgraph/scheduler/internal/store/postgres"
)

func main() {
	config.LoadEnv()
	cfg := config.FromEnv()

	logLevel := logger.INFO
	if cfg.DebugLogging {
		logLevel = logger.DEBUG
	}
	if err := logger.Init(logger.Config{
		Level:      logLevel,
		Format:     logger.JSON,
		OutputPath: "stdout",
		Caller:     true,
		Stacktrace: true,
	}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	s, closeStore := openStore(cfg)
	defer closeStore()

	q := openQueue(cfg)

	locker := openLocker(cfg)

	recalc := cascade.NewRecalculator(s)
	dispatcher := cascade.NewDispatcher(q, recalc, cfg.MaxWorkerJobs, cfg.JobTimeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dispatcher.Start(ctx); err != nil {
		logger.Logger.Fatal("failed to start cascade dispatcher", zap.Error(err))
	}

	sched := scheduler.New(s, q, locker)
	handler := httpapi.NewHandler(sched, dispatcher)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	go func() {
		logger.Logger.Info("scheduler listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Logger.Info("shutting down scheduler")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("http server shutdown error", zap.Error(err))
	}

	if err := dispatcher.Stop(cfg.JobTimeout()); err != nil {
		logger.Logger.Error("cascade dispatcher shutdown error", zap.Error(err))
	}
}

// openStore connects to PostgreSQL when DatabaseURL is reachable,
// falling back to the dependency-free in-memory store otherwise.
func openStore(cfg config.Config) (store.Store, func()) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Logger.Warn("database unreachable, falling back to in-memory store", zap.Error(err))
		return memstore.New(), func() {}
	}
	return postgres.New(db), func() { _ = db.Close() }
}

func openQueue(cfg config.Config) cascade.Queue {
	switch cfg.QueueBackend {
	case config.QueueBackendKafka:
		q, err := kafkaqueue.New(cfg.KafkaBrokers)
		if err != nil {
			logger.Logger.Warn("kafka queue unavailable, falling back to in-memory queue", zap.Error(err))
			return memqueue.New(cfg.MaxWorkerJobs * 10)
		}
		return q
	case config.QueueBackendRedis:
		return redisqueue.New(cfg.RedisAddr)
	default:
		return memqueue.New(cfg.MaxWorkerJobs * 10)
	}
}

func openLocker(cfg config.Config) scheduler.ProjectLocker {
	if cfg.QueueBackend == config.QueueBackendRedis {
		return scheduler.NewRedisProjectLocker(cfg.RedisAddr, 10*time.Second)
	}
	return scheduler.NewMemProjectLocker()
}
