package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/infobusbot/internal/points"
	"github.com/edgard/infobusbot/internal/text"
)

// NewPointsHandler returns a handler for the /points [query] command.
func NewPointsHandler(deps HandlerDeps) bot.HandlerFunc {
	return pointsHandler{deps}.Handle
}

type pointsHandler struct {
	deps HandlerDeps
}

func (h pointsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "points")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	query := strings.Join(text.Fields(text.CommandArgs(update.Message.Text)), " ")

	var rows []points.Point
	if query != "" {
		rows = h.deps.Points.Search(query)
	} else {
		rows = h.deps.Points.List()
	}
	log.DebugContext(ctx, "Listing points", "chat_id", chatID, "query", query, "found", len(rows))

	msgs := h.deps.Config.Messages
	if len(rows) == 0 {
		reply(ctx, b, log, chatID, msgs.NoPoints)
		return
	}

	points.SortForDisplay(rows)
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, msgs.PointsHeader)
	for _, p := range rows {
		lines = append(lines, fmt.Sprintf("• %s — id %s", p.Canonical, p.ID))
	}
	reply(ctx, b, log, chatID, strings.Join(lines, "\n"))
}
