package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
	// Description is shown in the Telegram command menu. Empty hides the command.
	Description string
}

// RegisterAllCommands returns every bot command in menu order.
func RegisterAllCommands(deps HandlerDeps) []RegisteredHandler {
	cmds := deps.Config.Commands
	userMiddleware := []tgbot.Middleware{RequireUser(deps)}

	command := func(pattern string, h tgbot.HandlerFunc, desc string, mw []tgbot.Middleware) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     h,
			Middleware:  mw,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Description: desc,
		}
	}

	return []RegisteredHandler{
		command("start", NewStartHandler(deps), cmds.Start, nil),
		command("help", NewHelpHandler(deps), cmds.Help, nil),
		command("points", NewPointsHandler(deps), cmds.Points, nil),
		command("subscribe", NewSubscribeHandler(deps), cmds.Subscribe, userMiddleware),
		command("unsubscribe", NewUnsubscribeHandler(deps), cmds.Unsubscribe, userMiddleware),
		command("subs", NewSubsHandler(deps), cmds.Subs, nil),
		command("status", NewStatusHandler(deps), cmds.Status, nil),
	}
}
