// Package main runs the live polling server: HTTP read API plus the
// WebSocket coordinator, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/polls"
	"github.com/classpulse/backend/internal/presence"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis only backs the chat backfill buffer; the service runs without it.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, chat backfill is in-memory only", zap.Error(err))
		} else {
			defer rdb.Close()
		}
	}
	history := chat.NewHistory(nil, cfg.Poll.ChatBuffer, logger)
	if rdb != nil {
		history = chat.NewHistory(rdb.Client, cfg.Poll.ChatBuffer, logger)
	}

	repo := polls.NewRepository(pool)
	manager := polls.NewManager(repo, time.Duration(cfg.Poll.StoreTimeoutSec)*time.Second, logger)
	pollHandler := polls.NewHandler(manager, cfg.Poll.HistoryLimit)

	registry := presence.NewRegistry()
	hub := realtime.NewHub(logger)
	coordinator := realtime.NewCoordinator(hub, registry, manager, history, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/polls/current", pollHandler.Current)
	router.GET("/polls/history", pollHandler.History)
	router.GET("/ws", realtime.ServeWs(coordinator, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
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
