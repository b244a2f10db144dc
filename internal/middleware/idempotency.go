package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/handlers"
	"github.com/Proton-105/debtbot/internal/idempotency"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Idempotency ensures handlers execute at most once per Telegram update.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := updateKey(c)
			if key == "" {
				return next(c)
			}

			ctx := handlers.RequestContext(c)
			_, err := manager.Execute(ctx, key, ttl, func(_ context.Context) (interface{}, error) {
				return nil, next(c)
			})
			switch {
			case err == nil:
				return nil
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.Debug("duplicate update dropped", slog.String("key", key))
				return nil
			default:
				return err
			}
		}
	}
}

func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}

	if id := c.Update().ID; id != 0 {
		return idempotency.UpdateKey("upd", chatID, id)
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return idempotency.UpdateKey("cb", chatID, cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 && msg.Chat != nil {
		return idempotency.UpdateKey("msg", msg.Chat.ID, msg.ID)
	}

	return ""
}
