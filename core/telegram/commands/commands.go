package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command binds a bot command handler to its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly restricts execution to the configured admin user.
	AdminOnly bool
	// Hidden keeps the command out of the Telegram command menu.
	Hidden  bool
	Aliases []string
}
