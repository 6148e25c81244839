package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/toolbridge/internal/api"
	"github.com/mattjoyce/toolbridge/internal/broker"
	"github.com/mattjoyce/toolbridge/internal/catalog"
	"github.com/mattjoyce/toolbridge/internal/config"
	"github.com/mattjoyce/toolbridge/internal/events"
	"github.com/mattjoyce/toolbridge/internal/history"
	"github.com/mattjoyce/toolbridge/internal/lock"
	"github.com/mattjoyce/toolbridge/internal/log"
	"github.com/mattjoyce/toolbridge/internal/storage"
)

func runServe(args []string) int {
	fs, configPath := newFlagSet("serve")
	listen := fs.String("listen", "", "Override api.listen (host:port)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}
	return startDaemon(cfg)
}

// startDaemon runs the daemon until SIGINT/SIGTERM.
func startDaemon(cfg *config.Config) int {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("toolbridge starting", "version", version, "config", cfg.SourcePath)

	ln, err := net.Listen("tcp", cfg.API.Listen)
	if err != nil {
		logger.Error("failed to listen", "listen", cfg.API.Listen, "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, ln); err != nil {
		logger.Error("daemon failed", "error", err)
		return 1
	}
	logger.Info("toolbridge stopped")
	return 0
}

// serve wires the broker, its observers and the HTTP API onto ln and blocks
// until ctx ends or a component fails. ln is closed on return.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	logger := log.WithComponent("main")

	pidLock, err := lock.Acquire(cfg.State.Dir)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = pidLock.Release() }()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	tools, err := catalog.Builtin()
	if err != nil {
		_ = ln.Close()
		return err
	}

	b := broker.New(broker.Config{
		SubmitTimeout: cfg.Broker.SubmitTimeout,
		PollWait:      cfg.Broker.PollWait,
	}, log.WithComponent("broker"))

	hub := events.NewHub(256)
	b.AddObserver(broker.PublishTo(hub))

	g, gctx := errgroup.WithContext(ctx)

	var hist api.HistoryReader
	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		logger.Info("history opened", "path", cfg.History.Path, "retention", cfg.History.Retention)

		store := history.NewStore(db)
		rec := history.NewRecorder(store, cfg.History.Retention, log.WithComponent("history"))
		b.AddObserver(rec)
		g.Go(func() error { return rec.Run(gctx) })
		hist = store
	}

	srv := api.New(api.Config{
		Listen:       ln.Addr().String(),
		Service:      cfg.MCP.ServerName,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		PollWait:     cfg.Broker.PollWait,
		MaxPollWait:  cfg.Broker.MaxPollWait,
	}, b, hub, tools, hist, log.WithComponent("api"))
	g.Go(func() error { return srv.Serve(gctx, ln) })

	logger.Info("toolbridge running (press Ctrl+C to stop)",
		"listen", ln.Addr().String(), "tools", tools.Len(), "history", cfg.History.Enabled)
	return g.Wait()
}
