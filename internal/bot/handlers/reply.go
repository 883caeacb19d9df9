package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"

	"github.com/edgard/infobusbot/internal/text"
)

// reply sends msg to chatID, split into several messages when it is over
// Telegram's length limit.
func reply(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, msg string) {
	for _, chunk := range text.Split(msg, text.MaxMessageLength) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
			return
		}
	}
}
