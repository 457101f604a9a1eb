package bot

import (
	"context"
	"fmt"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/finwire/payflow/core/telegram/keyboard"
	"github.com/finwire/payflow/core/telegram/sender"
	"github.com/finwire/payflow/form"
)

// Callback keys for form interactions. Choice buttons carry
// "<flow>|<field>|<value>" so a press is applied only to the field it was
// rendered for; navigation buttons carry "<flow>|<action>".
const (
	cbChoice = "flowchoice"
	cbNav    = "flownav"
)

const choicesPerRow = 2

// Messenger renders form prompts as Telegram messages with inline keyboards
// and pushes them through the async sender. The bot handle is bound at
// startup, after telebot finished constructing it.
type Messenger struct {
	bot  atomic.Pointer[tele.Bot]
	disp atomic.Pointer[sender.Dispatcher]
}

// NewMessenger creates an unbound messenger; Bind must be called before the
// first prompt is sent.
func NewMessenger() *Messenger {
	return &Messenger{}
}

// Bind attaches the live bot and dispatcher.
func (m *Messenger) Bind(bot *tele.Bot, disp *sender.Dispatcher) {
	m.bot.Store(bot)
	m.disp.Store(disp)
}

// SendPrompt renders the prompt keyboard and delivers it to the owner.
func (m *Messenger) SendPrompt(ctx context.Context, owner int64, flowID string, p form.Prompt) error {
	markup := promptMarkup(flowID, p)
	return m.deliver(ctx, "send.prompt", func(bot *tele.Bot) error {
		_, err := bot.Send(&tele.User{ID: owner}, p.Text, &tele.SendOptions{ReplyMarkup: markup})
		return err
	})
}

// SendNotice delivers a plain text message with no keyboard.
func (m *Messenger) SendNotice(ctx context.Context, owner int64, text string) error {
	return m.deliver(ctx, "send.notice", func(bot *tele.Bot) error {
		_, err := bot.Send(&tele.User{ID: owner}, text)
		return err
	})
}

func (m *Messenger) deliver(ctx context.Context, action string, send func(*tele.Bot) error) error {
	bot := m.bot.Load()
	if bot == nil {
		return fmt.Errorf("bot: messenger not bound")
	}
	run := func() error { return send(bot) }

	disp := m.disp.Load()
	if disp == nil {
		return run()
	}
	if err := disp.Enqueue(ctx, action, "sendMessage", run); err != nil {
		// Saturated or closing queue falls back to a synchronous send so the
		// user still gets the prompt.
		return run()
	}
	return nil
}

func promptMarkup(flowID string, p form.Prompt) *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn

	if len(p.Choices) > 0 {
		buttons := make([]keyboard.InlineBtn, len(p.Choices))
		for i, c := range p.Choices {
			label := c.Label
			if label == "" {
				label = c.Key
			}
			buttons[i] = keyboard.InlineBtn{
				Text:   label,
				Unique: cbChoice,
				Data:   flowID + "|" + p.Field + "|" + c.Key,
			}
		}
		rows = append(rows, keyboard.Chunk(buttons, choicesPerRow)...)
	}

	if p.Confirm {
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   "✅ Confirm",
			Unique: cbNav,
			Data:   flowID + "|" + string(form.NavConfirm),
		}})
	}

	var navRow []keyboard.InlineBtn
	if p.AllowBack {
		navRow = append(navRow, keyboard.InlineBtn{
			Text:   "⬅️ Back",
			Unique: cbNav,
			Data:   flowID + "|" + string(form.NavBack),
		})
	}
	navRow = append(navRow, keyboard.InlineBtn{
		Text:   "❌ Cancel",
		Unique: cbNav,
		Data:   flowID + "|" + string(form.NavCancel),
	})
	rows = append(rows, navRow)

	return keyboard.InlineRows(rows...)
}
