// Package main - точка входа xpbot: движок прогрессии и тиров голосового
// XP-бота.
//
// Команды:
//   - serve        - основной процесс: поток голосовых событий, тики, роли
//   - migrate      - миграции базы данных
//   - seed         - тестовые участники
//   - tiers        - просмотр конфигурации тиров
//   - leaderboard  - лидерборд сообщества
//   - rank         - позиция участника
//   - levels       - таблица прогрессии
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/xpbot/xpbot/config"
	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/memory"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/postgres"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// runtimeEnv - загруженная конфигурация и логгер, общие для всех команд.
type runtimeEnv struct {
	cfg *config.Config
	log *logger.Logger
}

func newRootCommand() *cobra.Command {
	env := &runtimeEnv{}

	root := &cobra.Command{
		Use:           "xpbot",
		Short:         "Voice XP progression and tier role engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			env.cfg = cfg
			env.log = setupLogger(cfg)
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if env.log != nil {
				_ = env.log.Sync()
			}
		},
	}

	root.AddCommand(
		newServeCommand(env),
		newMigrateCommand(env),
		newSeedCommand(env),
		newTiersCommand(env),
		newLeaderboardCommand(env),
		newRankCommand(env),
		newLevelsCommand(env),
	)
	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.IsDevelopment() && opts.Format == "" {
		opts.Format = "console"
	}

	return logger.New(opts).
		Named(cfg.App.Name).
		With(logger.String("env", string(cfg.App.Environment)), logger.String("version", cfg.App.Version))
}

// openStore открывает хранилище прогресса. Для postgres возвращается и
// соединение, его нужно закрыть; для memory соединение nil.
func openStore(ctx context.Context, env *runtimeEnv) (progression.Repository, *postgres.Connection, error) {
	if env.cfg.Database.Driver == config.StoreDriverMemory {
		env.log.Warn("using in-memory store, progress is lost on exit")
		return memory.NewMemberProgressRepository(), nil, nil
	}

	env.log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, postgres.ConfigFrom(env.cfg.Database), env.log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	env.log.Info("database connection established")
	return postgres.NewMemberProgressRepository(conn), conn, nil
}

// runMigrations применяет миграции и пишет итог в лог.
func runMigrations(ctx context.Context, conn *postgres.Connection, log *logger.Logger) error {
	migrator := postgres.NewMigrator(conn)
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", logger.Err(err))
		return nil
	}
	log.Info("migrations completed",
		logger.Int("applied_now", applied),
		logger.Int("applied_total", countApplied(status)),
		logger.Int("total", len(status)),
	)
	return nil
}

func countApplied(status []postgres.Migration) int {
	n := 0
	for _, m := range status {
		if m.IsApplied {
			n++
		}
	}
	return n
}
