package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/infobusbot/internal/text"
)

// NewUnsubscribeHandler returns a handler for /unsubscribe <id|all>.
func NewUnsubscribeHandler(deps HandlerDeps) bot.HandlerFunc {
	return unsubscribeHandler{deps}.Handle
}

type unsubscribeHandler struct {
	deps HandlerDeps
}

func (h unsubscribeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "unsubscribe")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Unsubscribe handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	msgs := h.deps.Config.Messages

	arg := strings.Join(text.Fields(text.CommandArgs(update.Message.Text)), " ")
	if arg == "" {
		reply(ctx, b, log, chatID, msgs.UnsubscribeUsage)
		return
	}

	if strings.EqualFold(arg, "all") {
		n, err := h.deps.Store.DeleteAllSubscriptions(ctx, userID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to delete subscriptions", "error", err, "user_id", userID)
			reply(ctx, b, log, chatID, msgs.GeneralError)
			return
		}
		log.InfoContext(ctx, "All subscriptions removed", "user_id", userID, "count", n)
		reply(ctx, b, log, chatID, fmt.Sprintf(msgs.UnsubscribedAll, n))
		return
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, msgs.BadID)
		return
	}

	ok, err := h.deps.Store.DeleteSubscription(ctx, userID, id)
	if err != nil {
		log.ErrorContext(ctx, "Failed to delete subscription", "error", err, "user_id", userID, "sub_id", id)
		reply(ctx, b, log, chatID, msgs.GeneralError)
		return
	}
	if !ok {
		reply(ctx, b, log, chatID, msgs.SubNotFound)
		return
	}

	log.InfoContext(ctx, "Subscription removed", "user_id", userID, "sub_id", id)
	reply(ctx, b, log, chatID, fmt.Sprintf(msgs.Unsubscribed, id))
}
