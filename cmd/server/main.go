// Package main runs the admin API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/evolnow/backend/config"
	"github.com/evolnow/backend/internal/audit"
	"github.com/evolnow/backend/internal/auth"
	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/internal/server"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/store/memory"
	"github.com/evolnow/backend/internal/store/postgres"
	"github.com/evolnow/backend/pkg/database"
	"github.com/evolnow/backend/pkg/queue"
	"github.com/evolnow/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	var st store.Store
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		st = memory.New()
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if cfg.Database.Migrate {
			if _, err := database.Migrate(ctx, pool, logger); err != nil {
				logger.Fatal("migrate", zap.Error(err))
			}
		}
		st = postgres.New(pool)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var recorder audit.Recorder = audit.NewLogRecorder(logger)
	if cfg.Audit.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		recorder = audit.NewPublisher(queue.NewQueue(rdb.Client, cfg.Audit.Queue, logger), m)
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		JWT:         auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Audit:       recorder,
		Metrics:     m,
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		MetricsPath: cfg.Metrics.Path,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
