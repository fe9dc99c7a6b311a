// Command stellarops-core boots the space-operations control plane: it
// wires every component in the fixed dependency order (Clock -> Event Bus ->
// Alarm Bus -> Satellite Fleet -> Breakers -> Orbital Client -> Mission
// Scheduler -> Mission Executor -> Conjunction Detector -> COA Planner ->
// COA Executor -> TLE Watcher) and serves until a termination signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/stellarops/core/internal/alarmbus"
	"github.com/stellarops/core/internal/clock"
	"github.com/stellarops/core/internal/coa"
	"github.com/stellarops/core/internal/conjunction"
	"github.com/stellarops/core/internal/eventbus"
	"github.com/stellarops/core/internal/executor"
	"github.com/stellarops/core/internal/mission"
	"github.com/stellarops/core/internal/missionrunner"
	"github.com/stellarops/core/internal/orbital"
	"github.com/stellarops/core/internal/resilience"
	"github.com/stellarops/core/internal/satellite"
	"github.com/stellarops/core/internal/scheduler"
	"github.com/stellarops/core/internal/store"
	"github.com/stellarops/core/internal/store/postgres"
	"github.com/stellarops/core/internal/tlewatch"
	"github.com/stellarops/core/internal/supervisor"
	"github.com/stellarops/core/pkg/config"
	"github.com/stellarops/core/pkg/logger"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP listen address for /metrics and /healthz")
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := logger.New(logger.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format,
		Output: cfg.Logging.Output, FilePrefix: cfg.Logging.FilePrefix,
	})

	if err := run(cfg, log, *metricsAddr); err != nil {
		log.WithError(err).Fatal("stellarops-core exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger, metricsAddr string) error {
	clk := clock.System{}

	bus := eventbus.New(log)
	reg := prometheus.NewRegistry()
	reg.MustRegister(bus.Collector())

	alarmStore, missionStore, err := openStores(cfg, log)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}

	alarms := alarmbus.New(alarmbus.Config{RetentionSeconds: cfg.AlarmBus.RetentionSeconds}, alarmStore, bus, clk, log)

	fleet := satellite.NewFleet(clk, log)

	breakerCfgs := make(map[string]resilience.Config, len(cfg.Breakers))
	for name, bc := range cfg.Breakers {
		breakerCfgs[name] = resilience.Config{
			Name: name, FailureThreshold: bc.FailureThreshold,
			FailureWindow: bc.FailureWindow, ResetTimeout: bc.ResetTimeout,
		}
	}
	breakers := resilience.NewRegistry(breakerCfgs, log)
	reg.MustRegister(breakers.Collector())

	var orbitalCaller orbital.Caller
	if cfg.Orbital.UseMock {
		orbitalCaller = orbital.NewMockClient(550)
	} else {
		orbitalCaller = orbital.New(orbital.Config{
			BaseURL: cfg.Orbital.BaseURL, Timeout: cfg.Orbital.Timeout,
			RateLimitPerS: cfg.Orbital.RateLimitPerS, RateBurst: int(cfg.Orbital.RateLimitPerS),
		})
	}
	orbitalClient := &orbital.ViaBreaker{
		Inner:    orbitalCaller,
		Breakers: breakers,
		Fallback: resilience.NewWithFallback(breakers, resilience.NewMemoryCache()),
		Degraded: orbital.NewMockClient(550),
	}

	groundStations := store.NewMemoryGroundStationStore()
	catalog := store.NewMemoryCatalogStore()
	conjunctions := store.NewMemoryConjunctionStore()
	coas := store.NewMemoryCOAStore()
	snapshots := store.NewMemorySatelliteSnapshotStore()

	validator := mission.New(fleet, groundStations, clk)

	// The scheduler, mission executor and COA executor form a three-way
	// dependency cycle (scheduler admits to the executor, the executor
	// reports completions to the COA executor, the COA executor enqueues
	// follow-on missions back onto the scheduler). Build the scheduler and
	// executor with placeholder links, then wire the COA executor in and
	// bind it back with the setters.
	sched := scheduler.New(scheduler.Config{
		TickInterval: cfg.Scheduler.DispatchInterval, BackoffBase: cfg.Scheduler.InitialBackoff,
	}, fleet, validator, missionStore, nil, clk, log)

	runner := missionrunner.New(fleet)
	missionExecutor := executor.New(executor.Config{
		InitialInterval: cfg.Scheduler.InitialBackoff, MaxInterval: cfg.Scheduler.MaxBackoff, Multiplier: 2.0,
	}, runner, missionStore, alarms, nil, clk, log)

	coaExecutor := coa.NewExecutor(missionStore, coas, sched, alarms, bus, clk, log)
	missionExecutor.SetCompletionHandler(coaExecutor)
	missionExecutor.SetEventBus(bus)
	sched.SetAdmitter(missionExecutor)


	detector := conjunction.New(conjunction.Config{
		IntervalMS: cfg.Detector.IntervalMS, HorizonHours: cfg.Detector.HorizonHours,
		StepSeconds: cfg.Detector.StepSeconds, MissDistanceThreshold: cfg.Detector.MissDistanceThreshold,
		CatalogConcurrency: cfg.Detector.CatalogConcurrency,
	}, fleet, orbitalClient, catalog, conjunctions, bus, alarms, clk, log)

	planner := coa.New(coa.Config{
		MaxDeltaVMS: cfg.Planner.MaxDeltaVMS, FuelDensityKGPerMS: cfg.Planner.FuelDensityKgPerMS,
		ManeuverLeadTimeHours: cfg.Planner.ManeuverLeadTimeHrs,
	}, fleet, coas, bus, clk, log)

	tleWatcher := tlewatch.New(tlewatch.Config{StaleThresholdHours: int(cfg.TLE.StaleThresholdHours)}, fleet, alarms, clk)

	sup := supervisor.New(log)
	sup.Register(alarms)
	sup.Register(fleet)
	sup.Register(sched)
	sup.Register(missionExecutor)
	sup.Register(detector)
	sup.Register(planner)
	sup.Register(coaExecutor)
	sup.Register(tleWatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}

	if err := rehydrateFleet(ctx, fleet, snapshots); err != nil {
		log.WithError(err).Warn("satellite fleet rehydration failed")
	}

	c := cron.New()
	if _, err := c.AddFunc("@every 5m", func() { tleWatcher.Check(ctx) }); err != nil {
		return fmt.Errorf("schedule tle watcher: %w", err)
	}
	purgeHorizon := time.Duration(cfg.AlarmBus.RetentionSeconds) * time.Second
	if _, err := c.AddFunc("@every 1h", func() { alarms.PurgeResolved(ctx, clk.Now().Add(-purgeHorizon)) }); err != nil {
		return fmt.Errorf("schedule alarm purge: %w", err)
	}
	if _, err := c.AddFunc("@every 1m", func() { checkpointFleet(ctx, fleet, snapshots) }); err != nil {
		return fmt.Errorf("schedule fleet checkpoint: %w", err)
	}
	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for name, rerr := range sup.Readiness(r.Context()) {
			if rerr != nil {
				http.Error(w, name+": "+rerr.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	log.WithField("metrics_addr", metricsAddr).Info("stellarops-core started")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("metrics server did not shut down cleanly")
	}
	return sup.Stop(shutdownCtx)
}

// openStores resolves the two store kinds the Postgres adapter covers
// (alarms, missions) to Postgres-backed implementations when a database DSN
// is configured, and to in-memory stores otherwise. Every other store
// (conjunctions, COAs, satellite snapshots, ground stations, catalog
// objects) only has an in-memory implementation.
func openStores(cfg *config.Config, log *logger.Logger) (store.AlarmStore, store.MissionStore, error) {
	if cfg.Database.DSN == "" {
		return store.NewMemoryAlarmStore(), store.NewMemoryMissionStore(), nil
	}

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.WithField("driver", cfg.Database.Driver).Info("connected to postgres")
	return postgres.NewAlarmStore(db), postgres.NewMissionStore(db), nil
}

// rehydrateFleet restarts every checkpointed satellite actor from its last
// saved snapshot, so the fleet survives a process restart.
func rehydrateFleet(ctx context.Context, fleet *satellite.Fleet, snapshots *store.MemorySatelliteSnapshotStore) error {
	snaps, err := snapshots.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		var tle *satellite.TLE
		if snap.TLELine1 != "" && snap.TLELine2 != "" {
			tle = &satellite.TLE{Line1: snap.TLELine1, Line2: snap.TLELine2}
		}
		if _, err := fleet.StartSatellite(snap.ID, satellite.StartOptions{
			Energy: snap.Energy, MemoryUsed: snap.MemoryUsed,
			Position: satellite.Position{X: snap.Position.X, Y: snap.Position.Y, Z: snap.Position.Z},
			TLE:      tle, MassKg: snap.MassKg,
		}); err != nil {
			return fmt.Errorf("restart satellite %s: %w", snap.ID, err)
		}
	}
	return nil
}

// checkpointFleet persists every active satellite's current state so a
// future restart can rehydrate from it via rehydrateFleet.
func checkpointFleet(ctx context.Context, fleet *satellite.Fleet, snapshots *store.MemorySatelliteSnapshotStore) {
	for _, s := range fleet.ListStates(ctx) {
		snap := store.SatelliteSnapshot{
			ID: s.ID, Mode: s.Mode.String(), Energy: s.Energy, MemoryUsed: s.MemoryUsed,
			Position: store.Vector3{X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z},
			MassKg:   s.MassKg, UpdatedAt: s.UpdatedAt,
		}
		if s.TLE != nil {
			snap.TLELine1, snap.TLELine2 = s.TLE.Line1, s.TLE.Line2
		}
		_ = snapshots.Save(ctx, snap)
	}
}
