package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"tycoon/internal/api"
	"tycoon/internal/clock"
	"tycoon/internal/config"
	"tycoon/internal/db"
	"tycoon/internal/metrics"
	"tycoon/internal/notify"
	"tycoon/internal/quantity"
	"tycoon/internal/reset"
	"tycoon/internal/scheduler"
	"tycoon/internal/seed"
	"tycoon/internal/sim"
	"tycoon/internal/store"
	"tycoon/internal/taskq"
	"tycoon/internal/throttle"
	"tycoon/internal/worldevent"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(os.Getenv("TYCOON_ENV_FILE")); err != nil {
		slog.Error("load env file", "err", err)
		os.Exit(1)
	}
	cfg, err := config.LoadServerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	snap, err := openSnapshotter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, snap, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.SeedOnStart {
		catalog, err := loadCatalog(cfg.SeedFile)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, st, catalog, logger); err != nil {
			return err
		}
	}
	notify.Attach(st, logger, notify.NewLogSink(logger))

	collectors := metrics.New()
	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	rng := quantity.NewRandom()
	if cfg.Seed != 0 {
		rng = quantity.New(cfg.Seed)
	}
	engine := sim.New(st, rng, collectors.Locker(locker), logger, sim.Options{
		MaxHold: cfg.LockMaxHold,
		MaxWait: cfg.LockMaxWait,
	})
	events := worldevent.New(engine, logger, cfg.Workers)
	clk := clock.New(st, logger)
	if cfg.ClockAutoStart {
		if err := clk.Start(ctx); err != nil {
			return err
		}
	}
	registry := scheduler.DefaultRegistry(engine, events)

	retry := taskq.RetryPolicy{
		MaxAttempts: cfg.TaskMaxAttempts,
		Backoff:     cfg.TaskBackoff,
		Observe:     collectors.ObserveTask,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// The scheduler needs its queue and the queue's handler needs the
	// scheduler, so dispatch goes through sched once it is set.
	var sched *scheduler.Scheduler
	dispatch := func(ctx context.Context, t taskq.Task) error { return sched.Dispatch(ctx, t) }

	var (
		queue taskq.Queue
		pool  *taskq.Pool
	)
	switch cfg.Queue {
	case "kafka":
		k, err := taskq.NewKafka(taskq.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger)
		if err != nil {
			return err
		}
		defer k.Close()
		queue = k
		if !cfg.RunOnce {
			handle := retry.Wrap(dispatch, logger)
			g.Go(func() error { return k.Consume(ctx, handle) })
		}
	case "spool":
		var acked taskq.Handler
		pool = taskq.NewPool(func(ctx context.Context, t taskq.Task) error { return acked(ctx, t) },
			taskq.PoolOptions{Workers: cfg.Workers, Retry: retry}, logger)
		spool, err := taskq.OpenSpool(cfg.SpoolPath, pool, logger)
		if err != nil {
			return err
		}
		acked = spool.Wrap(dispatch)
		queue = spool
	default:
		pool = taskq.NewPool(dispatch, taskq.PoolOptions{Workers: cfg.Workers, Retry: retry}, logger)
		queue = pool
	}
	sched = scheduler.New(clk, registry, queue, collectors, logger)

	if pool != nil {
		g.Go(func() error { return pool.Run(ctx) })
		if spool, ok := queue.(*taskq.Spool); ok {
			if _, err := spool.Replay(ctx); err != nil {
				return err
			}
		}
	}

	if cfg.RunOnce {
		err := runOnce(ctx, sched, pool, logger)
		cancel()
		return errors.Join(err, g.Wait())
	}

	server := api.New(api.Deps{
		Engine:     engine,
		Clock:      clk,
		Ticker:     sched,
		Events:     events,
		Reset:      reset.New(st, logger),
		Metrics:    collectors.Handler(),
		AdminToken: cfg.AdminToken,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("api listening", "addr", cfg.Addr, "store", cfg.Store, "queue", cfg.Queue, "lock", cfg.Lock)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return tickLoop(ctx, sched, cfg.TickEvery, logger) })

	err = g.Wait()
	logger.Info("server shutdown")
	return err
}

func tickLoop(ctx context.Context, sched *scheduler.Scheduler, every time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger.Info("tick loop started", "tick_every", every.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := sched.AdvanceOneTick(ctx); err != nil {
				if errors.Is(err, clock.ErrClockMoved) {
					logger.Warn("tick skipped, clock moved concurrently")
					continue
				}
				logger.Error("tick failed", "err", err)
			}
		}
	}
}

func runOnce(ctx context.Context, sched *scheduler.Scheduler, pool *taskq.Pool, logger *slog.Logger) error {
	res, err := sched.AdvanceOneTick(ctx)
	if err != nil {
		return err
	}
	if pool != nil {
		if err := pool.Drain(ctx); err != nil {
			return err
		}
	}
	logger.Info("run-once completed", "advanced", res.Tick.Advanced, "tasks", len(res.Tasks))
	return nil
}

func openSnapshotter(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (store.Snapshotter, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("state is kept in memory only")
		return nil, nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		snap, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return snap, nil
	default:
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	}
}

func loadCatalog(path string) (seed.Catalog, error) {
	if path == "" {
		return seed.Default()
	}
	return seed.Load(path)
}

func newLocker(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (throttle.Locker, func(), error) {
	if cfg.Lock != "redis" {
		return throttle.NewLocal(logger), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return throttle.NewRedis(client, logger), func() { _ = client.Close() }, nil
}
