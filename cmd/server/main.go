package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lootdogs.ai/internal/app"
	"lootdogs.ai/internal/persistence/leaderboard"
	persistlog "lootdogs.ai/internal/persistence/log"
	"lootdogs.ai/internal/sim/catalogs"
	"lootdogs.ai/internal/sim/multiworld"
	"lootdogs.ai/internal/sim/players"
	"lootdogs.ai/internal/sim/tuning"
	"lootdogs.ai/internal/transport/api"
	"lootdogs.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		mapsPath   = flag.String("maps", "./configs/maps.json", "map catalog path")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory (event logs, default database)")
		dbPath     = flag.String("db", "", "leaderboard sqlite path (default: <data>/leaderboard.sqlite)")
		seed       = flag.Int64("seed", 0, "random seed for spawns and loot (0: time based)")

		stateFile  = flag.String("state-file", "", "snapshot file to restore on start and save to (empty: no persistence)")
		savePeriod = flag.Duration("save-state-period", 0, "game time between automatic saves (overrides tuning save_period)")
		tickPeriod = flag.Duration("tick-period", 0, "automatic tick period (overrides tuning tick_period; 0 keeps manual ticks)")
		randomize  = flag.Bool("randomize-spawn-points", false, "spawn dogs at random road points (overrides tuning)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	gin.SetMode(gin.ReleaseMode)

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cat, err := catalogs.Load(*mapsPath)
	if err != nil {
		logger.Fatalf("load maps: %v", err)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if set["tick-period"] {
		tune.TickPeriod = *tickPeriod
	}
	if set["save-state-period"] {
		tune.SavePeriod = *savePeriod
	}
	if set["randomize-spawn-points"] {
		tune.RandomizeSpawnPoints = *randomize
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	dbp := strings.TrimSpace(*dbPath)
	if dbp == "" {
		dbp = filepath.Join(*dataDir, "leaderboard.sqlite")
	}
	store, err := leaderboard.Open(dbp, tune.DBPoolSize, logger)
	if err != nil {
		logger.Fatalf("open leaderboard: %v", err)
	}
	defer store.Close()

	events := persistlog.NewEventLogger(*dataDir)
	defer events.Close()

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	mgr, err := multiworld.NewManager(cat, multiworld.ConfigFromTuning(tune), rand.New(rand.NewSource(s)))
	if err != nil {
		logger.Fatalf("init sessions: %v", err)
	}

	rt, err := app.New(app.Options{
		Manager:    mgr,
		Directory:  players.NewDirectory(nil),
		Records:    store,
		Events:     events,
		Logger:     logger,
		StateFile:  strings.TrimSpace(*stateFile),
		SavePeriod: tune.SavePeriod,
		TickPeriod: tune.TickPeriod,
	})
	if err != nil {
		logger.Fatalf("init runtime: %v", err)
	}
	if sf := strings.TrimSpace(*stateFile); sf != "" {
		restored, err := rt.LoadState(sf)
		if err != nil {
			logger.Fatalf("restore state from %s: %v", sf, err)
		}
		if restored {
			logger.Printf("restored state from %s", sf)
		}
	}

	wsSrv := ws.NewServer(rt, logger)
	rt.AddListener(wsSrv)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		err := tuning.Watch(ctx, *tuningPath, logger, func(t tuning.Tuning) {
			ctx2, cancel2 := context.WithTimeout(ctx, 5*time.Second)
			defer cancel2()
			if err := rt.ApplyTuning(ctx2, t); err != nil {
				logger.Printf("apply tuning: %v", err)
				return
			}
			logger.Printf("tuning reloaded from %s", *tuningPath)
		})
		if err != nil && err != context.Canceled {
			logger.Printf("tuning watch stopped: %v", err)
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := rt.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("runtime stopped: %v", err)
		}
	}()

	mux := newMux(muxDeps{
		rt:     rt,
		api:    api.NewServer(rt, logger),
		ws:     wsSrv,
		store:  store,
		logger: logger,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx2); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (maps=%d auto_tick=%v)", *addr, len(cat.Maps), rt.AutoTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	// In-flight handlers may still touch the store; it closes after they finish.
	<-shutdownDone
	// Run saves the state on its way out.
	<-runDone
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
