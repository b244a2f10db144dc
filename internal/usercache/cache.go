// Package usercache caches chat and member lookups of a ledger.Registry in Redis.
package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/debtbot/internal/domain"
	"github.com/Proton-105/debtbot/internal/ledger"
)

const defaultTTL = 10 * time.Minute

// Cache is a read-through ledger.Registry. Writes go to the wrapped
// registry first and then drop the affected entries.
type Cache struct {
	next   ledger.Registry
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

var _ ledger.Registry = (*Cache)(nil)

// NewCache wraps next. A nil client disables caching.
func NewCache(next ledger.Registry, client *redis.Client, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{next: next, client: client, ttl: ttl, log: log}
}

func (c *Cache) RegisterChat(ctx context.Context, chatID int64) error {
	if c.client != nil {
		if n, err := c.client.Exists(ctx, chatKey(chatID)).Result(); err == nil && n > 0 {
			return nil
		}
	}
	return c.next.RegisterChat(ctx, chatID)
}

func (c *Cache) GetChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	var chat domain.Chat
	if c.get(ctx, chatKey(chatID), &chat) {
		return &chat, nil
	}

	found, err := c.next.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, chatKey(chatID), found)
	return found, nil
}

func (c *Cache) SetChatLanguage(ctx context.Context, chatID int64, language string) error {
	if err := c.next.SetChatLanguage(ctx, chatID, language); err != nil {
		return err
	}
	c.invalidate(ctx, chatKey(chatID))
	return nil
}

func (c *Cache) RegisterUser(ctx context.Context, user *domain.User) error {
	if err := c.next.RegisterUser(ctx, user); err != nil {
		return err
	}
	c.invalidate(ctx, userKey(user.ChatID, user.ID), membersKey(user.ChatID))
	return nil
}

func (c *Cache) GetUser(ctx context.Context, chatID, userID int64) (*domain.User, error) {
	var user domain.User
	if c.get(ctx, userKey(chatID, userID), &user) {
		return &user, nil
	}

	found, err := c.next.GetUser(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, userKey(chatID, userID), found)
	return found, nil
}

// FindUserByUsername is not cached; usernames can change outside the bot.
func (c *Cache) FindUserByUsername(ctx context.Context, chatID int64, username string) (*domain.User, error) {
	return c.next.FindUserByUsername(ctx, chatID, username)
}

func (c *Cache) ListChatUsers(ctx context.Context, chatID int64) ([]domain.User, error) {
	var users []domain.User
	if c.get(ctx, membersKey(chatID), &users) {
		return users, nil
	}

	found, err := c.next.ListChatUsers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, membersKey(chatID), found)
	return found, nil
}

func (c *Cache) get(ctx context.Context, key string, dst interface{}) bool {
	if c.client == nil {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("registry cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("registry cache entry is corrupt", slog.String("key", key), slog.Any("error", err))
		c.invalidate(ctx, key)
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value interface{}) {
	if c.client == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("registry cache encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("registry cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *Cache) invalidate(ctx context.Context, keys ...string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("registry cache invalidation failed", slog.String("keys", strings.Join(keys, ",")), slog.Any("error", err))
	}
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("registry:chat:%d", chatID)
}

func userKey(chatID, userID int64) string {
	return fmt.Sprintf("registry:user:%d:%d", chatID, userID)
}

func membersKey(chatID int64) string {
	return fmt.Sprintf("registry:members:%d", chatID)
}
