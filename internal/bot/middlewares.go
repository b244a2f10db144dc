package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/handlers"
	apperrors "github.com/Proton-105/debtbot/internal/errors"
	"github.com/Proton-105/debtbot/internal/ledger"
	"github.com/Proton-105/debtbot/pkg/logger"
)

// RecoveryMiddleware turns a panicking handler into a reported error.
func RecoveryMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware reports handler failures and tells the member in
// the chat's language. Callbacks get a popup instead of a message.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, locales *handlers.Localizer, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			ctx := handlers.RequestContext(c)
			key := apperrors.MessageGeneric
			if errHandler != nil {
				key, _ = errHandler.Handle(ctx, handlers.MapError(err))
			}

			text := key
			if locales != nil {
				text = locales.ForUpdate(ctx, c).T(key)
			}

			var sendErr error
			if c.Callback() != nil {
				sendErr = c.Respond(&telebot.CallbackResponse{Text: text, ShowAlert: true})
			} else {
				sendErr = c.Send(text)
			}
			if sendErr != nil {
				log.Warn("failed to notify member about error", slog.Any("error", sendErr))
			}

			return nil
		}
	}
}

// LoggingMiddleware attaches a request context with a correlation id and
// logs each update.
func LoggingMiddleware(log *slog.Logger, timeout time.Duration) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			ctx := logger.WithCorrelationID(context.Background(), "")
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			handlers.WithRequestContext(c, ctx)

			start := time.Now()
			attrs := []any{slog.String("action", updateAction(c))}
			if sender := c.Sender(); sender != nil {
				attrs = append(attrs, slog.Int64("user_id", sender.ID))
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}

			log.DebugContext(ctx, "handling update", attrs...)
			err := next(c)
			log.InfoContext(ctx, "handled update", append(attrs, slog.Duration("duration", time.Since(start)), slog.Any("error", err))...)

			return err
		}
	}
}

// ChatRegistrationMiddleware makes sure every chat the bot talks in exists
// in the registry before a handler reads it.
func ChatRegistrationMiddleware(registry ledger.Registry, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if registry != nil {
				if chat := c.Chat(); chat != nil {
					if err := registry.RegisterChat(handlers.RequestContext(c), chat.ID); err != nil {
						log.Error("failed to register chat", slog.Int64("chat_id", chat.ID), slog.Any("error", err))
						return apperrors.NewDatabaseError(err)
					}
				}
			}

			return next(c)
		}
	}
}

func updateAction(c telebot.Context) string {
	if cb := c.Callback(); cb != nil {
		return "callback:" + cb.Data
	}
	if cmd := handlers.CommandName(c.Text()); cmd != "" {
		return cmd
	}
	return "text:" + strconv.Itoa(len(c.Text()))
}
