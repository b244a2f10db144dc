// Package handlers implements the bot commands, inline callbacks and
// conversation steps.
package handlers

import (
	"context"
	"strings"

	telebot "gopkg.in/telebot.v3"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes an inline callback with its decoded payload fields.
type CallbackHandler func(c telebot.Context, fields []string) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// contextKey is the telebot.Context store key holding the request context.
const contextKey = "request_ctx"

// WithRequestContext attaches ctx to the update so handlers share its
// deadline and correlation id.
func WithRequestContext(c telebot.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(contextKey, ctx)
	}
}

// RequestContext returns the context attached by WithRequestContext.
func RequestContext(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(contextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// CommandName extracts "/cmd" from a message, dropping arguments and the
// "@botname" suffix used in groups.
func CommandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.Fields(text)[0]
	if at := strings.Index(name, "@"); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}
