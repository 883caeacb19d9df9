package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewSubsHandler returns a handler for the /subs command.
func NewSubsHandler(deps HandlerDeps) bot.HandlerFunc {
	return subsHandler{deps}.Handle
}

type subsHandler struct {
	deps HandlerDeps
}

func (h subsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "subs")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	items, err := h.deps.Store.ListSubscriptions(ctx, fromID(update.Message))
	if err != nil {
		log.ErrorContext(ctx, "Failed to list subscriptions", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if len(items) == 0 {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.NoSubs)
		return
	}

	lines := make([]string, 0, len(items))
	for _, s := range items {
		lines = append(lines, fmt.Sprintf("#%d %s", s.ID, s.Summary()))
	}
	reply(ctx, b, log, chatID, strings.Join(lines, "\n"))
}

// fromID is the sender's user id, or 0 when the message has no sender.
func fromID(m *models.Message) int64 {
	if m.From == nil {
		return 0
	}
	return m.From.ID
}
