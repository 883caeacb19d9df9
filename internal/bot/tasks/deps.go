// Package tasks implements the scheduled jobs of the bot: the timetable
// checker and database maintenance.
package tasks

import (
	"context"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/infobusbot/internal/config"
	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/infobus"
)

// Sender delivers messages to users. *tgbot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
	Routes infobus.Fetcher
	Sender Sender
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}
