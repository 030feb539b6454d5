package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JakubTesarek/codeborn/internal/agent"
	"github.com/JakubTesarek/codeborn/internal/commands"
	"github.com/JakubTesarek/codeborn/internal/config"
	"github.com/JakubTesarek/codeborn/internal/db"
	"github.com/JakubTesarek/codeborn/internal/dispatch"
	"github.com/JakubTesarek/codeborn/internal/lifecycle"
	"github.com/JakubTesarek/codeborn/internal/registry"
	"github.com/JakubTesarek/codeborn/internal/repositories"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliConfig struct {
	dbDriver   string
	dbDSN      string
	logLevel   string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "codeborn-engine",
		Short: "codeborn engine — supervises bot subprocesses and arbitrates the shared game world",
		Long: `The codeborn engine spawns each enabled bot as a subprocess (raw or
Docker-sandboxed), exchanges newline-delimited JSON messages with it over
stdio, and applies the army move/split/merge commands it receives against
the shared, persisted game state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("CODEBORN_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("CODEBORN_DB_DSN", "./codeborn.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("CODEBORN_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.configPath, "config", envOrDefault("CODEBORN_CONFIG", ""), "Path to the TOML config file for lifecycle/agents/game tables (optional)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codeborn-engine %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cli *cliConfig) error {
	logger, err := buildLogger(cli.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	gameCfg, err := config.Load(cli.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	gameCfg.DBDriver = cli.dbDriver
	gameCfg.DBDSN = cli.dbDSN
	gameCfg.LogLevel = cli.logLevel

	logger.Info("starting codeborn engine",
		zap.String("version", version),
		zap.String("db_driver", gameCfg.DBDriver),
		zap.String("log_level", gameCfg.LogLevel),
		zap.String("runtime_class", string(gameCfg.Agents.RuntimeClass)),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Database ---
	gormDB, err := db.New(db.Config{
		Driver:   gameCfg.DBDriver,
		DSN:      gameCfg.DBDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(gameCfg.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- Repositories ---
	usersRepo := repositories.NewUserRepository(gormDB)
	botsRepo := repositories.NewBotRepository(gormDB)
	memoriesRepo := repositories.NewBotMemoryRepository(gormDB)
	locationsRepo := repositories.NewLocationRepository(gormDB)
	armiesRepo := repositories.NewArmyRepository(gormDB)
	unitsRepo := repositories.NewUnitRepository(gormDB)
	messagesRepo := repositories.NewMessageRepository(gormDB)
	_ = usersRepo // users are provisioned out-of-band (spec.md §10 Non-goals); kept for future admin tooling

	// --- Command router ---
	armyHandlers := &commands.ArmyHandlers{
		Armies:    armiesRepo,
		Units:     unitsRepo,
		Locations: locationsRepo,
		UnitTable: gameCfg.Game.Units,
		Terrains:  gameCfg.Game.Terrains,
		Logger:    logger,
	}
	router := commands.NewRouter(logger)
	armyHandlers.Register(router)

	// --- Message dispatcher ---
	dispatcher := dispatch.New(botsRepo, memoriesRepo, messagesRepo, router, logger)

	// --- Agent factory ---
	factory, closeDocker, err := buildAgentFactory(gameCfg.Agents, logger)
	if err != nil {
		return fmt.Errorf("failed to build agent factory: %w", err)
	}
	if closeDocker != nil {
		defer closeDocker()
	}

	// --- Registry ---
	agentRegistry := registry.New(factory, dispatcher.OnMessage, logger)

	loops := &lifecycle.Loops{
		Bots:     botsRepo,
		Armies:   armiesRepo,
		Memories: memoriesRepo,
		Registry: agentRegistry,
		Logger:   logger,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); lifecycle.RunRestart(ctx, gameCfg, loops) }()
	go func() { defer wg.Done(); lifecycle.RunHeartbeat(ctx, gameCfg, loops) }()
	go func() { defer wg.Done(); lifecycle.RunStateUpdate(ctx, gameCfg, loops) }()

	<-ctx.Done()
	logger.Info("shutting down codeborn engine")

	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	agentRegistry.RemoveAll(shutdownCtx)

	logger.Info("codeborn engine stopped")
	return nil
}

// buildAgentFactory returns a registry.Factory appropriate for cfg.RuntimeClass,
// and a cleanup func to release the Docker client (nil for RuntimeRaw).
func buildAgentFactory(cfg config.AgentsConfig, logger *zap.Logger) (registry.Factory, func(), error) {
	switch cfg.RuntimeClass {
	case config.RuntimeSandboxed:
		docker, err := dockerclient.NewClientWithOpts(dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		factory := func(bot db.Bot) agent.BotAgent {
			return agent.NewSandboxedAgent(bot, cfg.ContainerImage, docker, logger)
		}
		return factory, func() { _ = docker.Close() }, nil

	default:
		factory := func(bot db.Bot) agent.BotAgent {
			return agent.NewRawAgent(bot, logger)
		}
		return factory, nil, nil
	}
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
