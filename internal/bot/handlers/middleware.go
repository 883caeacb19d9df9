// Package handlers contains Telegram bot command handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// RequireUser creates a middleware for commands that act on behalf of a user.
// Messages without sender info (e.g. channel posts) get the "unknown user"
// reply and are not passed on.
func RequireUser(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil {
				return
			}

			if update.Message.From == nil {
				chatID := update.Message.Chat.ID
				log := deps.Logger.With("middleware", "RequireUser")
				log.WarnContext(ctx, "Command without sender", "chat_id", chatID)

				_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: chatID,
					Text:   deps.Config.Messages.UnknownUser,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send unknown user message", "error", err, "chat_id", chatID)
				}
				return
			}

			next(ctx, bot, update)
		}
	}
}
