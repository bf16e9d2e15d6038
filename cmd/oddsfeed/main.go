package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/calebward/oddsfeed/internal/adapters/ggbet"
	_ "github.com/calebward/oddsfeed/internal/adapters/kambi"
	_ "github.com/calebward/oddsfeed/internal/adapters/pinnacle"

	"github.com/calebward/oddsfeed/internal/config"
	"github.com/calebward/oddsfeed/internal/core/store"
	"github.com/calebward/oddsfeed/internal/events"
	"github.com/calebward/oddsfeed/internal/fanout"
	"github.com/calebward/oddsfeed/internal/feed/rawstore"
	"github.com/calebward/oddsfeed/internal/supervisor"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting odds feed")

	ops, err := config.LoadOperators(cfg.OperatorsPath)
	if err != nil {
		telemetry.Errorf("Operators roster: %v", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	snapshots := store.New()

	// ── Raw envelope archive ────────────────────────────────────
	var archive *rawstore.Store
	if cfg.ArchivePath != "" {
		archive, err = rawstore.Open(cfg.ArchivePath)
		if err != nil {
			telemetry.Warnf("Archive disabled: %v", err)
		} else {
			defer archive.Close()
		}
	}

	// ── Fanout server ───────────────────────────────────────────
	fanoutServer := fanout.NewServer(bus)
	go func() {
		if err := fanoutServer.ListenAndServe(cfg.FanoutAddr); err != nil {
			telemetry.Errorf("Fanout server: %v", err)
			os.Exit(1)
		}
	}()

	// ── Supervisor ──────────────────────────────────────────────
	sup, err := supervisor.New(cfg, ops, snapshots, bus, archive)
	if err != nil {
		telemetry.Errorf("Supervisor: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	telemetry.Infof("Ingesting %d operators, fanout on %s", len(ops.Operators), cfg.FanoutAddr)

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	if err := sup.Stop(); err != nil {
		telemetry.Warnf("Shutdown: %v", err)
	}

	telemetry.Infof("Shutdown complete  envelopes=%d  applied=%d  protocol_errors=%d  skipped=%d",
		telemetry.Metrics.EnvelopesReceived.Value(),
		telemetry.Metrics.UpdatesApplied.Value(),
		telemetry.Metrics.ProtocolErrors.Value(),
		telemetry.Metrics.EntitiesSkipped.Value(),
	)
}
