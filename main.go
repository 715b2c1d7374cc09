package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studiocommand/engine/config"
	"github.com/studiocommand/engine/internal/auth"
	"github.com/studiocommand/engine/internal/control"
	"github.com/studiocommand/engine/internal/model"
	"github.com/studiocommand/engine/internal/output"
	"github.com/studiocommand/engine/internal/pcmbus"
	"github.com/studiocommand/engine/internal/playout"
	"github.com/studiocommand/engine/internal/queue"
	"github.com/studiocommand/engine/internal/store"
	"github.com/studiocommand/engine/internal/topup"
	"github.com/studiocommand/engine/internal/webrtcsession"
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()

	slog.Info("starting studiocommand engine",
		"bind", cfg.Bind,
		"db_path", cfg.DBPath,
		"carts_dir", cfg.CartsDir,
	)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	queueState := queue.New()
	if items, err := db.LoadQueue(); err != nil {
		slog.Error("failed to load persisted queue", "error", err)
	} else if len(items) > 0 {
		queueState.Replace(items)
		slog.Info("loaded persisted queue", "items", len(items))
	}

	outputCfg, err := db.LoadOutputConfig()
	if err != nil {
		slog.Error("failed to load output config", "error", err)
	}
	outputSupervisor := output.New(outputCfg, cfg.FfmpegBin)

	topupCfg, err := db.LoadTopUpConfig()
	if err != nil {
		slog.Error("failed to load topup config", "error", err)
	}
	if migrated, did := topup.Migrate(topupCfg, cfg.TopUpDirDefault); did {
		topupCfg = migrated
		if err := db.SaveTopUpConfig(topupCfg); err != nil {
			slog.Error("failed to persist migrated topup config", "error", err)
		}
		slog.Info("migrated legacy top-up config to defaults", "dir", topupCfg.Dir)
	}
	topupController := topup.New(topupCfg, cfg.TopUpDirDefault, cfg.CartsDir, cfg.FfprobeBin, db, queueState)

	bus := pcmbus.New()

	webrtcManager, err := webrtcsession.New(cfg.WebRTCStun, bus, queueState)
	if err != nil {
		slog.Error("failed to build webrtc manager", "error", err)
		os.Exit(1)
	}

	var operatorAuth *auth.Auth
	if cfg.OperatorUser != "" && cfg.OperatorPass != "" {
		operatorAuth = auth.New(auth.Config{
			Username:           cfg.OperatorUser,
			Password:           cfg.OperatorPass,
			JWTSecret:          cfg.JWTSecret,
			TokenTTL:           24 * time.Hour,
			MaxLoginAttempts:   5,
			LoginWindowSeconds: 300,
		})
	} else {
		slog.Warn("no operator credentials configured, control plane is unauthenticated")
	}

	persist := func(items []*model.LogItem) {
		if err := db.SaveQueue(items); err != nil {
			slog.Error("failed to persist queue", "error", err)
		}
	}
	writer := playout.New(queueState, topupController, outputSupervisor, bus, persist, cfg.FfmpegBin, cfg.CartsDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("shutdown signal received")
		cancel()
	}()

	go writer.Run(ctx)

	controlServer := control.New(queueState, outputSupervisor, topupController, webrtcManager, db, operatorAuth, version, cfg.ProducersFile)
	httpServer := &http.Server{
		Addr:    cfg.Bind,
		Handler: controlServer.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		outputSupervisor.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	slog.Info("control plane listening", "bind", cfg.Bind)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("control plane error", "error", err)
		os.Exit(1)
	}

	slog.Info("engine stopped")
}
