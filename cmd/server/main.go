package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"avatarsim.ai/internal/config"
	persistlog "avatarsim.ai/internal/persistence/log"
	"avatarsim.ai/internal/persistence/snapshot"
	"avatarsim.ai/internal/sim/clock"
	"avatarsim.ai/internal/sim/perception"
	"avatarsim.ai/internal/sim/resolve"
	"avatarsim.ai/internal/sim/schedule"
	"avatarsim.ai/internal/sim/world"
	"avatarsim.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "", "path to server.yaml (empty: built-in defaults)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the SQLite history index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		logLevel     = flag.String("log_level", "info", "log level (debug, info, warn, error)")
		dev          = flag.Bool("dev", false, "human-readable development logging")
		remoteCmds   = flag.Bool("allow_remote_commands", false, "accept websocket commands from non-loopback clients")
		enablePprof  = flag.Bool("pprof", false, "serve /debug/pprof")
		startRunning = flag.Bool("start", false, "start the simulation clock immediately")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	params := cfg.Params()
	occlusion, _ := perception.ParseOcclusion(cfg.Simulation.Occlusion)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatal("data dir", zap.Error(err))
	}
	savesDir := filepath.Join(*dataDir, "saves")

	// Optional: history index (does not affect the simulation).
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatal("open index", zap.Error(err))
	}

	initial, resumedFrom, resumeErr := snapshot.Resume(logger, params, savesDir, strings.TrimSpace(*snapPath), *loadLatest, time.Now())

	archive := persistlog.NewEventArchive(filepath.Join(*dataDir, "events"), logger)
	hooks := []world.CommitHook{world.NewLogMirror(logger), archive}
	if idx != nil {
		hooks = append(hooks, idx)
	}
	store := world.NewStore(params, initial, world.WithLogger(logger), world.WithHooks(hooks...))
	if resumeErr != nil {
		_, _ = store.Update(func(w *world.World) error {
			w.AddLog(store.Now(), world.LevelWarning, "", "saved world unusable, started with the default world: %v", resumeErr)
			return nil
		})
	} else if resumedFrom != "" {
		_, _ = store.Update(func(w *world.World) error {
			w.AddLog(store.Now(), world.LevelInfo, "", "resumed from %s", filepath.Base(resumedFrom))
			return nil
		})
	}

	router, closeOracles, err := buildRouter(cfg, logger)
	if err != nil {
		logger.Fatal("oracles", zap.Error(err))
	}
	defer closeOracles()

	resolver := resolve.New(store, router)
	sched := schedule.New(store, perception.New(occlusion), router, resolver)
	clk := clock.New(store, sched, clock.WithPollInterval(cfg.PollInterval()))

	var rec snapshot.Recorder
	if idx != nil {
		rec = idx
	}
	saver := snapshot.NewSaver(store, snapshot.SaverConfig{
		Dir:      savesDir,
		Interval: cfg.AutosaveInterval(),
		Retain:   cfg.Persistence.Retain,
	}, rec)

	ctx, cancel := signalContext()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := clk.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("clock stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		_ = saver.Run(ctx)
	}()
	if *startRunning {
		store.SetRunning(true)
	}

	wsSrv := ws.NewServer(store, saver, ws.Options{AllowRemoteCommands: *remoteCmds})
	mux := http.NewServeMux()
	if idx != nil {
		wsSrv.Routes(mux, idx)
	} else {
		wsSrv.Routes(mux, nil)
	}
	mux.HandleFunc("/metrics", metricsHandler(metricsSources{
		store:   store,
		clock:   clk,
		sched:   sched,
		archive: archive,
		index:   idx,
	}))
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", zap.String("addr", *addr), zap.Strings("providers", router.Providers()), zap.String("occlusion", string(occlusion)))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ListenAndServe", zap.Error(err))
		cancel()
	}

	// The final autosave must land before the index and archive close.
	cancel()
	wg.Wait()
	if err := archive.Close(); err != nil {
		logger.Warn("close event archive", zap.Error(err))
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			logger.Warn("close index", zap.Error(err))
		}
	}
	logger.Info("stopped")
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
