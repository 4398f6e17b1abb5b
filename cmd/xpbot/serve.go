package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xpbot/xpbot/config"
	"github.com/xpbot/xpbot/internal/application"
	"github.com/xpbot/xpbot/internal/application/command"
	"github.com/xpbot/xpbot/internal/application/eventhandler"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/infrastructure/messaging"
	"github.com/xpbot/xpbot/internal/infrastructure/metrics"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/redis"
	"github.com/xpbot/xpbot/internal/infrastructure/scheduler"
	"github.com/xpbot/xpbot/internal/infrastructure/scheduler/jobs"
	"github.com/xpbot/xpbot/internal/infrastructure/tierconfig"
	httpserver "github.com/xpbot/xpbot/internal/interface/http"
	"github.com/xpbot/xpbot/pkg/circuitbreaker"
	"github.com/xpbot/xpbot/pkg/logger"
	"github.com/xpbot/xpbot/pkg/ratelimit"
)

func newServeCommand(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume voice events, credit XP and keep tier roles in sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), env)
		},
	}
}

func serve(parent context.Context, env *runtimeEnv) error {
	cfg, log := env.cfg, env.log
	log.Info("starting xpbot",
		logger.String("store", cfg.Database.Driver),
		logger.Bool("redis", !cfg.Redis.Disabled),
		logger.Int64("xp_per_minute", cfg.Progression.XPPerMinute),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ ПРОГРЕССА
	// ─────────────────────────────────────────────────────────────────────────
	repo, conn, err := openStore(ctx, env)
	if err != nil {
		return err
	}
	if conn != nil {
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()
		if err := runMigrations(ctx, conn, log); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ТАБЛИЦЫ ТИРОВ
	// ─────────────────────────────────────────────────────────────────────────
	tiers, err := tierconfig.NewRegistry(cfg.Roles.ConfigPath, log)
	if err != nil {
		return fmt.Errorf("failed to load tier config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache     *redis.Cache
		announcer eventhandler.Announcer
	)
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		cache, err = redis.NewCache(ctx, redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection...")
			if err := cache.Close(); err != nil {
				log.Warn("failed to close redis", logger.Err(err))
			}
		}()
		announcer = redis.NewAnnouncementPublisher(cache)
		log.Info("Redis connection established")
	} else {
		log.Warn("redis disabled: no voice event stream, tier roles are not managed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("failed to close event bus", logger.Err(err))
		}
	}()

	if announcer != nil {
		onLevelUp := eventhandler.NewOnLevelUpHandler(announcer, eventhandler.LevelUpConfig{
			ChannelID: cfg.Progression.LevelUpChannelID,
			Enabled:   guildFlag(cfg, config.FeatureLevelUpAnnounce),
		}, log)
		if err := bus.Subscribe(shared.EventLevelUp, onLevelUp.Handle); err != nil {
			return fmt.Errorf("subscribe level-up handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	accumulator := command.NewVoiceAccumulator(repo, bus, m, log, command.VoiceAccumulatorConfig{
		XPPerMinute: cfg.Progression.XPPerMinute,
	})

	var reconciler *command.TierReconciler
	if cache != nil {
		breaker := circuitbreaker.New("role_commands",
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		)
		mutator := redis.NewRoleCommandPublisher(cache, breaker, nil, log)
		mutator.SetLimiter(ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Roles.CommandsPerSecond,
			BurstSize:         cfg.Roles.CommandsBurst,
			WaitTimeout:       cfg.Roles.CommandWait,
		}))
		reconciler = command.NewTierReconciler(tiers, redis.NewRoleDirectory(cache), mutator, bus, m, log)
	}

	voice := application.NewVoiceService(accumulator, reconciler, guildFlag(cfg, config.FeatureTierSync), log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	sched.OnJobComplete(func(r scheduler.JobResult) {
		m.JobRun(r.JobName, r.Success, r.Duration)
	})
	if err := sched.Register(
		jobs.NewVoiceTickJob(repo, voice, m, nil, log),
		scheduler.NewIntervalSchedule(cfg.Scheduler.VoiceTickInterval),
	); err != nil {
		return err
	}
	if err := sched.Register(
		jobs.NewReloadTiersJob(tiers),
		scheduler.NewIntervalSchedule(cfg.Roles.ReloadInterval),
	); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	var sub *redis.VoiceEventSubscriber
	if cache != nil {
		sub = redis.NewVoiceEventSubscriber(cache, func(ctx context.Context, ev command.VoiceEvent) error {
			_, err := voice.HandleVoiceEvent(ctx, ev)
			return err
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Run(ctx); err != nil {
				errCh <- fmt.Errorf("voice event subscriber: %w", err)
			}
		}()
	}

	var ops *httpserver.Server
	if cfg.Observability.MetricsEnabled {
		health := httpserver.NewHealthChecker(cfg.App.Version)
		if conn != nil {
			health.AddCheck("postgres", httpserver.PingCheck(conn))
		}
		if cache != nil {
			health.AddCheck("redis", httpserver.PingCheck(cache))
		}
		if sub != nil {
			health.AddCheck("voice_events", httpserver.ReadyCheck(sub.Ready()))
		}

		opsConfig := httpserver.DefaultConfig()
		opsConfig.Addr = cfg.Observability.MetricsAddr
		ops = httpserver.NewServer(opsConfig, httpserver.Dependencies{
			Logger:  log,
			Health:  health,
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		})
		opsErr := ops.StartAsync()
		go func() {
			if err, ok := <-opsErr; ok && err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("xpbot is running")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case runErr = <-errCh:
		log.Error("service error", logger.Err(runErr))
		stop()
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched.IsRunning() {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", logger.Err(err))
		}
	}
	wg.Wait()

	if ops != nil {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop http server gracefully", logger.Err(err))
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// guildFlag возвращает проверку флага для конкретного сообщества.
func guildFlag(cfg *config.Config, feature string) func(shared.GuildID) bool {
	return func(guildID shared.GuildID) bool {
		return cfg.Features.IsEnabled(feature, guildID.Int64())
	}
}
