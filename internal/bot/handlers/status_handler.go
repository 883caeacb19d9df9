package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/timewindow"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// NewStatusHandler returns a handler for the /status command.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	header, err := h.header(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read check status", "error", err)
		reply(ctx, b, log, chatID, msgs.GeneralError)
		return
	}

	items, err := h.deps.Store.ListSubscriptions(ctx, fromID(update.Message))
	if err != nil {
		log.ErrorContext(ctx, "Failed to list subscriptions", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, msgs.GeneralError)
		return
	}
	if len(items) == 0 {
		reply(ctx, b, log, chatID, header+"\n"+msgs.NoSubs)
		return
	}

	chunks := []string{header, msgs.StatusHeader}
	for _, s := range items {
		chunks = append(chunks, fmt.Sprintf("\n#%d %s\n%s", s.ID, s.Summary(), timewindow.FormatHash(s.LastHash)))
	}
	reply(ctx, b, log, chatID, strings.Join(chunks, "\n"))
}

// header describes the last check pass. It ends with a newline.
func (h statusHandler) header(ctx context.Context) (string, error) {
	lastTS, ok, err := h.deps.Store.GetMeta(ctx, database.MetaLastCheckTS)
	if err != nil {
		return "", err
	}
	ts, convErr := strconv.ParseInt(lastTS, 10, 64)
	if !ok || convErr != nil {
		return h.deps.Config.Messages.NoChecksYet + "\n", nil
	}

	checks, ok, err := h.deps.Store.GetMeta(ctx, database.MetaChecksCount)
	if err != nil {
		return "", err
	}
	if !ok {
		checks = "0"
	}

	when := time.Unix(ts, 0).Local().Format(statusTimeLayout)
	return fmt.Sprintf(h.deps.Config.Messages.LastCheck, when, checks) + "\n", nil
}
