package router

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/finwire/payflow/core/telegram"
	tghelpers "github.com/finwire/payflow/core/telegram/helpers"
	"github.com/finwire/payflow/core/telegram/middleware"
)

// Forms is the slice of the form engine the text router needs: detect an
// in-flight flow for the sender and feed free text into it.
type Forms interface {
	ActiveFlow(ctx context.Context, owner int64) (string, bool)
	HandleText(ctx context.Context, owner int64, flowID, text string) error
}

// TextOptions controls fallback behaviour for unmatched text.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the single OnText route. Precedence: an active form
// session consumes the text first, then command lookup, then the registry
// fallback.
func TextRoutes(forms Forms, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()
		owner := c.Sender().ID

		if forms != nil {
			ctx := tghelpers.BuildContext(c)
			if flowID, ok := forms.ActiveFlow(ctx, owner); ok {
				ctx = tghelpers.WithFlow(c, flowID)
				return handleWithSummary(c, "form."+normalizeHandlerName(flowID), start, func() error {
					return forms.HandleText(ctx, owner, flowID, text)
				})
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}
