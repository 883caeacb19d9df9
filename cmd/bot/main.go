// Package main contains the entrypoint for the infobus watcher bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/infobusbot/internal/bot"
	"github.com/edgard/infobusbot/internal/bot/handlers"
	"github.com/edgard/infobusbot/internal/bot/tasks"
	"github.com/edgard/infobusbot/internal/config"
	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/infobus"
	"github.com/edgard/infobusbot/internal/logger"
	"github.com/edgard/infobusbot/internal/points"
	"github.com/edgard/infobusbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components and returns an
// exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	out, closeLog, err := logger.OpenOutput(cfg.Logger.ToFile, cfg.Logger.File)
	if err != nil {
		slog.Error("Failed to open log output", "error", err)
		return 1
	}
	defer closeLog()

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON, out)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "to_file", cfg.Logger.ToFile)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	client, err := infobus.NewClient(cfg.Infobus, log)
	if err != nil {
		log.Error("Failed to create infobus client", "error", err)
		return 1
	}
	routes := infobus.NewCachedFetcher(client, cfg.Infobus.CacheSize, cfg.Infobus.CacheTTL)

	hDeps := handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
		Points: points.New(extraPoints(cfg.Points)...),
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.SetCommands(ctx, tg, cmdHandlers); err != nil {
		// non-fatal
		log.Warn("Failed to set bot commands", "error", err)
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
		Routes: routes,
		Sender: tg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	log.Info("Bot started")
	runErr := bot.NewBot(log, tg, sched).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Bot stopped gracefully")
	return 0
}

func extraPoints(cfgPoints []config.PointConfig) []points.Point {
	out := make([]points.Point, 0, len(cfgPoints))
	for _, p := range cfgPoints {
		out = append(out, points.Point{Key: p.Key, ID: p.ID, Canonical: p.Name, Aliases: p.Aliases})
	}
	return out
}
