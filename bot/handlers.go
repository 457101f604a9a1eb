package bot

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/finwire/payflow/core/buildinfo"
	tg "github.com/finwire/payflow/core/telegram"
	"github.com/finwire/payflow/core/telegram/callbacks"
	"github.com/finwire/payflow/core/telegram/commands"
	"github.com/finwire/payflow/core/telegram/format"
	tghelpers "github.com/finwire/payflow/core/telegram/helpers"
	"github.com/finwire/payflow/flows"
	"github.com/finwire/payflow/form"
)

var startedAt = time.Now()

type commandSpec struct {
	name        string
	description string
	flowID      string
}

// flowCommands maps slash commands to the flows they start.
var flowCommands = []commandSpec{
	{"/addbeneficiary", "Save a new beneficiary", flows.FlowBeneficiaryCreate},
	{"/editbeneficiary", "Update a saved beneficiary", flows.FlowBeneficiaryUpdate},
	{"/send", "Send funds to a beneficiary wallet", flows.FlowWalletTransfer},
	{"/sendemail", "Send funds by email", flows.FlowEmailTransfer},
	{"/offramp", "Pay out to a bank account", flows.FlowOfframpTransfer},
	{"/deposit", "Add funds to your wallet", flows.FlowDeposit},
}

// BuildRegistry assembles the static dispatch table: commands, the two form
// callbacks and the unknown-text fallback.
func BuildRegistry(engine *form.Engine) (*tg.Registry, error) {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     startHandler(),
		Description: "Start the bot",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     helpHandler(),
		Description: "List available commands",
	})

	for _, spec := range flowCommands {
		reg.RegisterCommand(spec.name, commands.Command{
			Handler:     startFlowHandler(engine, spec.flowID),
			Description: spec.description,
		})
	}

	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     cancelHandler(engine),
		Description: "Cancel the current operation",
		Aliases:     []string{"stop"},
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     statsHandler(engine),
		Description: "Runtime statistics",
		AdminOnly:   true,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(cbChoice, choiceCallback(engine)); err != nil {
		return nil, err
	}
	if err := reg.RegisterCallback(cbNav, navCallback(engine)); err != nil {
		return nil, err
	}

	reg.SetTextFallback(func(c tele.Context) error {
		return tghelpers.SendText(c, "I didn't catch that. Send /help to see what I can do.")
	})

	return reg, nil
}

func startHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, "*Welcome to PayFlow\\.*\n\n"+helpText())
	}
}

func helpHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, helpText())
	}
}

func helpText() string {
	var b strings.Builder
	for _, spec := range flowCommands {
		fmt.Fprintf(&b, "%s \\- %s\n",
			format.EscapeMarkdownV2(spec.name),
			format.EscapeMarkdownV2(spec.description),
		)
	}
	b.WriteString(format.EscapeMarkdownV2("/cancel") + " \\- " + format.EscapeMarkdownV2("Cancel the current operation") + "\n")
	b.WriteString("\nAnswer the questions one by one\\. Use the buttons to go back, cancel, or confirm\\.")
	return b.String()
}

func startFlowHandler(engine *form.Engine, flowID string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithFlow(c, flowID)
		return engine.Start(ctx, c.Sender().ID, flowID)
	}
}

func cancelHandler(engine *form.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		owner := c.Sender().ID
		flowID, ok := engine.ActiveFlow(ctx, owner)
		if !ok {
			return tghelpers.SendText(c, "Nothing is in progress right now.")
		}
		ctx = tghelpers.WithFlow(c, flowID)
		return engine.HandleNavigate(ctx, owner, flowID, form.NavCancel)
	}
}

func statsHandler(engine *form.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		active := "none"
		if flowID, ok := engine.ActiveFlow(ctx, c.Sender().ID); ok {
			active = flowID
		}
		text := fmt.Sprintf("version: %s (%s)\nuptime: %s\nyour active flow: %s",
			buildinfo.Version, buildinfo.Commit,
			time.Since(startedAt).Round(time.Second), active)
		return tghelpers.SendText(c, text)
	}
}

// choiceCallback feeds a choice-button press into the engine. Presses whose
// flow or field no longer matches the active session resolve as silent
// no-ops.
func choiceCallback(engine *form.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		flowID, fieldKey, value, ok := splitChoicePayload(c)
		if !ok {
			return nil
		}
		ctx := tghelpers.WithFlow(c, flowID)
		return engine.HandleChoice(ctx, c.Sender().ID, flowID, fieldKey, value)
	}
}

func navCallback(engine *form.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		flowID, action, ok := splitFlowPayload(c)
		if !ok {
			return nil
		}
		ctx := tghelpers.WithFlow(c, flowID)
		return engine.HandleNavigate(ctx, c.Sender().ID, flowID, form.Nav(action))
	}
}

func splitFlowPayload(c tele.Context) (flowID, value string, ok bool) {
	payload := callbacks.Payload(c)
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitChoicePayload(c tele.Context) (flowID, fieldKey, value string, ok bool) {
	payload := callbacks.Payload(c)
	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
