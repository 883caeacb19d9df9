package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/infobusbot/internal/database"
	"github.com/edgard/infobusbot/internal/text"
	"github.com/edgard/infobusbot/internal/timewindow"
)

// NewSubscribeHandler returns a handler for
// /subscribe <date> <from> <to> <fromHH:MM> <toHH:MM>.
func NewSubscribeHandler(deps HandlerDeps) bot.HandlerFunc {
	return subscribeHandler{deps}.Handle
}

type subscribeHandler struct {
	deps HandlerDeps
}

func (h subscribeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "subscribe")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Subscribe handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	msgs := h.deps.Config.Messages

	parts := text.Fields(text.CommandArgs(update.Message.Text))
	if len(parts) == 0 {
		reply(ctx, b, log, chatID, msgs.SubscribeFormat)
		return
	}
	if len(parts) < 5 {
		reply(ctx, b, log, chatID, msgs.TooFewArgs)
		return
	}

	dateStr := parts[0]
	fromToken, toToken := parts[1], parts[2]
	depFrom, depTo := parts[len(parts)-2], parts[len(parts)-1]

	from, err := h.deps.Points.ResolveNameOrID(fromToken)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf(msgs.PointNotFound, fromToken))
		return
	}
	to, err := h.deps.Points.ResolveNameOrID(toToken)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf(msgs.PointNotFound, toToken))
		return
	}

	if !timewindow.ValidDate(dateStr) {
		reply(ctx, b, log, chatID, fmt.Sprintf(msgs.BadDate, dateStr))
		return
	}
	for _, hhmm := range []string{depFrom, depTo} {
		if !timewindow.ValidHHMM(hhmm) {
			reply(ctx, b, log, chatID, fmt.Sprintf(msgs.BadTime, hhmm))
			return
		}
	}

	sub := &database.Subscription{
		UserID:      update.Message.From.ID,
		CityFromID:  from.ID,
		CityToID:    to.ID,
		FromName:    from.Canonical,
		ToName:      to.Canonical,
		DateStr:     dateStr,
		DepFromHHMM: depFrom,
		DepToHHMM:   depTo,
	}
	id, err := h.deps.Store.AddSubscription(ctx, sub)
	if err != nil {
		log.ErrorContext(ctx, "Failed to add subscription", "error", err, "user_id", sub.UserID)
		reply(ctx, b, log, chatID, msgs.GeneralError)
		return
	}
	sub.ID = id

	log.InfoContext(ctx, "Subscription added", "sub_id", id, "user_id", sub.UserID,
		"from", sub.CityFromID, "to", sub.CityToID, "date", sub.DateStr)
	reply(ctx, b, log, chatID, fmt.Sprintf(msgs.Subscribed, id, sub.Summary()))
}
