package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/handlers"
	"github.com/Proton-105/debtbot/internal/bot/keyboard"
	"github.com/Proton-105/debtbot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(actionLabel(c), status, time.Since(start))

		return err
	}
}

func actionLabel(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		return CallbackLabel(cb.Data)
	}

	return TextLabel(c.Text())
}

// CallbackLabel keeps only the callback action so ids do not explode
// label cardinality.
func CallbackLabel(data string) string {
	unique, _, err := keyboard.DecodeCallback(strings.TrimPrefix(data, "\f"))
	if err != nil || unique == "" {
		return "unknown"
	}
	return "cb:" + unique
}

// TextLabel names a message by its command, or "text" for plain replies.
func TextLabel(text string) string {
	if cmd := handlers.CommandName(text); cmd != "" {
		return cmd
	}
	if text == "" {
		return "unknown"
	}
	return "text"
}
