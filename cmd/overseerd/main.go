// Command overseerd is the Overseer server daemon. It opens the task
// store, seeds the agent roster from config, and serves the REST API
// and the SSE event stream until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/overseer/agent"
	"github.com/GoCodeAlone/overseer/assign"
	"github.com/GoCodeAlone/overseer/comms"
	"github.com/GoCodeAlone/overseer/config"
	"github.com/GoCodeAlone/overseer/deps"
	"github.com/GoCodeAlone/overseer/hub"
	"github.com/GoCodeAlone/overseer/internal/version"
	"github.com/GoCodeAlone/overseer/orchestrator"
	"github.com/GoCodeAlone/overseer/server"
	"github.com/GoCodeAlone/overseer/store"
)

var configPath = flag.String("config", "overseer.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(*configPath); err == nil {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting overseerd",
		"version", version.Version,
		"commit", version.Commit,
	)

	if dir := filepath.Dir(cfg.Store.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create data dir %s: %v", dir, err)
		}
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open store %s: %v", cfg.Store.Path, err)
	}
	defer st.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, a := range cfg.Agents {
		err := st.UpsertAgent(ctx, &agent.Agent{
			ID:        a.ID,
			Name:      a.Name,
			Role:      a.Role,
			Approver:  a.Approver,
			Model:     a.Model,
			SessionID: a.SessionID,
		})
		if err != nil {
			log.Fatalf("Failed to seed agent %s: %v", a.ID, err)
		}
	}

	dm := deps.NewManager(st)
	dispatch := comms.NewInMemoryDispatcher()
	h := hub.New(logger)
	if d := cfg.Hub.PingInterval.Std(); d > 0 {
		h.SetPingInterval(d)
	}

	ctrl := orchestrator.New(st, dm, assign.NewScorer(scoringConfig(cfg.Scoring)), dispatch, h, logger)
	ctrl.SetDispatchTimeout(cfg.Dispatch.Timeout.Std())
	ctrl.SetStatsWindow(cfg.Scoring.CompletionWindow.Std())

	srv := server.New(cfg, version.Version, logger)
	srv.SetController(ctrl)
	srv.SetStore(st)
	srv.SetDeps(dm)
	srv.SetMessageLog(dispatch)
	srv.SetHub(h)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(ctx)
	})
	g.Go(func() error {
		if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func scoringConfig(sc config.ScoringConfig) assign.Config {
	cfg := assign.DefaultConfig()
	if sc.LoadPenalty > 0 {
		cfg.LoadPenalty = sc.LoadPenalty
	}
	if sc.SpecializationWeight > 0 {
		cfg.SpecializationWeight = sc.SpecializationWeight
	}
	if sc.SpeedBonus > 0 {
		cfg.SpeedBonus = sc.SpeedBonus
	}
	if sc.UrgencyBonus > 0 {
		cfg.UrgencyBonus = sc.UrgencyBonus
	}
	if d := sc.FastAgentThreshold.Std(); d > 0 {
		cfg.FastAgentThreshold = d
	}
	if d := sc.CompletionWindow.Std(); d > 0 {
		cfg.CompletionWindow = d
	}
	if len(sc.Keywords) > 0 {
		cfg.Keywords = sc.Keywords
	}
	return cfg
}
