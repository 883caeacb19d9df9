package handlers

import (
	"log/slog"

	"github.com/edgard/infobusbot/internal/config"
	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/points"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
	Points *points.Directory
}
