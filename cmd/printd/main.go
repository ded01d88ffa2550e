package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qaraa/printd/internal/api/handlers"
	"github.com/qaraa/printd/internal/config"
	"github.com/qaraa/printd/internal/db"
	"github.com/qaraa/printd/internal/dispatch"
	"github.com/qaraa/printd/internal/log"
	"github.com/qaraa/printd/internal/metrics"
	"github.com/qaraa/printd/internal/printer"
	"github.com/qaraa/printd/internal/store"
)

func main() {
	bootLogger := log.NewLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		bootLogger.Warn("Failed to load .env file", zap.Error(err))
	}

	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		bootLogger.Fatal("Invalid config", zap.Error(err))
	}

	logger, err := log.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		bootLogger.Fatal("Failed to build logger", zap.Error(err))
	}

	database, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer database.Close()

	st := store.New(database, store.Config{
		RetryBackoff: cfg.Dispatcher.RetryBackoff,
		MaxBackoff:   cfg.Dispatcher.MaxBackoff,
	})

	registry := prometheus.NewRegistry()
	m := metrics.New(registry, st, logger)

	transport := printer.NewSocketTransport(cfg.Printer.Device, cfg.Printer.Address)

	dispatcher := dispatch.New(st, transport, dispatch.Config{
		Device:         cfg.Printer.Device,
		Width:          cfg.Printer.Width,
		MaxAttempts:    cfg.Dispatcher.MaxAttempts,
		PollInterval:   cfg.Dispatcher.PollInterval,
		SendTimeout:    cfg.Dispatcher.SendTimeout,
		StaleThreshold: cfg.Dispatcher.StaleThreshold,
		ReapInterval:   cfg.Dispatcher.ReapInterval,
	}, m, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go dispatcher.Run(ctx)
	go dispatcher.Reaper(ctx)
	go m.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := handlers.NewJobHandler(st, dispatcher, m)
	h.RegisterRoutes(r.Group("/api/v1"))

	r.GET("/health", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}
