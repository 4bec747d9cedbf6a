package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/cache/local"
	"github.com/alanyoungcy/tradepilot/internal/cache/redis"
	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/executor"
	"github.com/alanyoungcy/tradepilot/internal/feed"
	"github.com/alanyoungcy/tradepilot/internal/metrics"
	"github.com/alanyoungcy/tradepilot/internal/server"
	"github.com/alanyoungcy/tradepilot/internal/server/handler"
	"github.com/alanyoungcy/tradepilot/internal/server/ws"
	"github.com/alanyoungcy/tradepilot/internal/service"
	"github.com/alanyoungcy/tradepilot/internal/store"
)

const (
	decisionCacheItems = 10_000
	decisionCacheTTL   = time.Hour
	wsReplay           = 50
)

// runtime is the engine plus the collaborators that hang off its publishers.
type runtime struct {
	engine  *autopilot.Engine
	metrics *metrics.Metrics
	queue   *executor.Queue
	placer  *executor.PaperPlacer
	cache   *local.DecisionCache
}

// ServerMode runs the engine behind the HTTP/WS API with redis-backed
// events, risk-state cache, paper execution, the opportunity feed and the
// daily rollover. Nothing is persisted to Postgres.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.run(ctx, deps)
}

// FullMode adds Postgres persistence of decisions, audit and risk snapshots,
// plus the cold-storage archive job when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	if deps.DecisionStore == nil {
		return errors.New("full mode: postgres is not wired")
	}
	return a.run(ctx, deps)
}

func (a *App) run(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildRuntime(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Approval sweeper.
	g.Go(func() error {
		return rt.engine.Run(ctx)
	})

	// Notifications.
	if deps.Notifier.Enabled() {
		g.Go(func() error {
			return deps.Notifier.Run(ctx)
		})
		st := rt.engine.Status()
		a.announce(ctx, deps, "tradepilot started",
			fmt.Sprintf("run mode %s, engine mode %s", a.cfg.RunMode, st.Mode))
	}

	// Executor: drains decision:execute events and places paper orders.
	if rt.queue != nil {
		exec := executor.NewExecutor(executor.Config{
			DedupTTL: a.cfg.Executor.DedupTTL.Duration,
			LockTTL:  a.cfg.Executor.LockTTL.Duration,
		}, rt.queue, rt.placer, rt.engine, a.logger,
			executor.WithLocks(deps.LockManager),
			executor.WithRateLimiter(deps.RateLimiter),
			executor.WithObserver(rt.metrics),
		)
		g.Go(func() error {
			return exec.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "executor.enabled is false; dispatched decisions will not be placed")
	}

	// Opportunity feed.
	if a.cfg.Feed.Enabled {
		feeder := feed.NewOpportunityFeeder(deps.SignalBus, a.cfg.Feed.OpportunityChannel, rt.engine, rt.placer, a.logger)
		g.Go(func() error {
			return feeder.Run(ctx)
		})
	}

	// Daily P&L rollover.
	if a.cfg.Rollover.Enabled {
		rollover, err := service.NewRollover(rt.engine, a.cfg.Rollover.Timezone, a.cfg.Rollover.CheckInterval.Duration, a.logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error {
			return rollover.Run(ctx)
		})
	}

	// Cold-storage archive.
	if deps.Archiver != nil {
		job := service.NewArchiveJob(deps.Archiver, a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
		g.Go(func() error {
			return job.Run(ctx)
		})
	}

	// HTTP server.
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, rt)
	}

	err = g.Wait()
	if deps.Notifier.Enabled() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st := rt.engine.Status()
		a.announce(shutCtx, deps, "tradepilot stopping",
			fmt.Sprintf("%d decisions, %d pending", st.TotalDecisions, st.PendingCount))
	}
	return err
}

// announce sends a lifecycle notice; failures are logged, never fatal.
func (a *App) announce(ctx context.Context, deps *Dependencies, title, message string) {
	if err := deps.Notifier.Announce(ctx, title, message); err != nil {
		a.logger.WarnContext(ctx, "lifecycle notice failed", slog.String("error", err.Error()))
	}
}

// buildRuntime constructs the engine with every publisher the available
// dependencies support. Publishers run in registration order, so persistence
// sees an event before the executor acts on it.
func (a *App) buildRuntime(ctx context.Context, deps *Dependencies) (*runtime, error) {
	rt := &runtime{placer: executor.NewPaperPlacer()}

	// The status func is only called at scrape time, after the engine exists.
	rt.metrics = metrics.New(func() autopilot.Status { return rt.engine.Status() })

	cache, err := local.NewDecisionCache(deps.DecisionStore, decisionCacheItems, decisionCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("app: decision cache: %w", err)
	}
	rt.cache = cache
	a.closers = append(a.closers, cache.Close)

	var pubs []autopilot.Publisher
	if deps.DecisionStore != nil {
		pubs = append(pubs, store.NewRecorder(deps.DecisionStore, deps.AuditStore, deps.RiskSnapshots, a.logger))
	}
	pubs = append(pubs,
		rt.cache,
		deps.RiskCache,
		redis.NewEventPublisher(deps.SignalBus),
		rt.metrics,
		deps.Notifier,
	)
	if a.cfg.Executor.Enabled {
		rt.queue = executor.NewQueue()
		pubs = append(pubs, rt.queue)
	}

	opts := []autopilot.Option{autopilot.WithPublishers(pubs...)}
	if a.cfg.AutoPilot.RestoreRiskState {
		state, source, err := restoreRiskState(ctx, deps.RiskCache, deps.RiskSnapshots)
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "risk state restore failed; starting flat",
				slog.String("error", err.Error()),
			)
		case source != "":
			a.logger.InfoContext(ctx, "risk state restored",
				slog.String("source", source),
				slog.Float64("daily_pnl_percent", state.DailyPnLPercent),
				slog.Float64("drawdown", state.CurrentDrawdown),
				slog.Float64("total_exposure", state.TotalExposure),
			)
			opts = append(opts, autopilot.WithRiskState(state))
		}
	}

	engine, err := autopilot.NewEngine(a.cfg.EngineConfig(), a.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

// restoreRiskState prefers the redis copy and falls back to the latest
// Postgres snapshot. source is empty when neither holds a state.
func restoreRiskState(ctx context.Context, cache domain.RiskStateCache, snapshots domain.RiskSnapshotStore) (domain.RiskState, string, error) {
	var errs []error
	if cache != nil {
		st, err := cache.Load(ctx)
		if err == nil {
			err = st.Validate()
		}
		if err == nil {
			return st, "redis", nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if snapshots != nil {
		st, err := snapshots.Latest(ctx)
		if err == nil {
			err = st.Validate()
		}
		if err == nil {
			return st, "postgres", nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return domain.RiskState{}, "", errors.Join(errs...)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	checks := map[string]handler.Check{
		"redis": deps.Redis.Ping,
	}
	if deps.Postgres != nil {
		checks["postgres"] = deps.Postgres.Ping
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3.Health
	}

	hub := ws.NewHub(deps.SignalBus, deps.SignalBus, func() any { return rt.engine.Status() }, ws.Config{
		Channel: redis.ChannelAutoPilot,
		Stream:  redis.StreamAutoPilot,
		Replay:  wsReplay,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKeyHash:      a.cfg.Server.APIKeyHash,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(checks, a.logger),
		Decisions: handler.NewDecisionHandler(rt.engine, rt.cache, a.logger),
		Controls:  handler.NewControlHandler(rt.engine, a.logger),
		Metrics:   rt.metrics.Handler(),
	}, hub, deps.RateLimiter, a.logger)

	if a.cfg.Server.APIKeyHash == "" {
		a.logger.WarnContext(ctx, "server.api_key_hash is empty; API authentication is disabled")
	}

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
