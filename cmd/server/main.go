package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/insightlab/reportstream/internal/background"
	"github.com/insightlab/reportstream/internal/client"
	"github.com/insightlab/reportstream/internal/config"
	"github.com/insightlab/reportstream/internal/logger"
	"github.com/insightlab/reportstream/internal/monitor"
	"github.com/insightlab/reportstream/internal/server"
	"github.com/insightlab/reportstream/internal/store"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting report gateway",
		"port", cfg.Port, "upstream", cfg.UpstreamBaseURL, "instance_id", logger.GetInstanceID())

	gin.SetMode(cfg.GinMode)

	// Report store: Postgres when configured, in-memory otherwise.
	var reportStore store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPG(cfg.DatabaseURL, store.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Minute,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Minute,
		}, log.WithComponent("store").Logger)
		if err != nil {
			log.Error("database init failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		reportStore = pg
	} else {
		log.Warn("no DATABASE_URL set, using in-memory report store")
		reportStore = store.NewMemoryStore()
	}

	upstream := client.New(cfg.UpstreamBaseURL,
		time.Duration(cfg.UpstreamTimeout)*time.Second, log.WithComponent("upstream").Logger)
	hub := monitor.NewHub(log.WithComponent("monitor").Logger)

	var sweeper *background.RetentionSweeper
	if cfg.ReportRetention > 0 {
		sweeper = background.NewRetentionSweeper(reportStore,
			time.Duration(cfg.ReportRetention)*24*time.Hour, cfg.RetentionCron,
			log.WithComponent("retention").Logger)
		if err := sweeper.Start(); err != nil {
			log.Error("retention sweep init failed", "error", err)
			os.Exit(1)
		}
		defer sweeper.Stop()
	}

	srv := server.New(cfg, upstream, reportStore, hub, log.WithComponent("server"))
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()
	log.Info("report gateway listening", "addr", httpServer.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
}
