package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPattern  = "fsm:state:%d:%d"
	sessionScanPattern = "fsm:state:*"
	sessionScanBatch   = 100
	defaultSessionTTL  = time.Hour
)

// RedisStorage persists FSM sessions in Redis as JSON.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStorage initializes a Redis-backed Storage. A zero ttl means one hour.
func NewRedisStorage(client *redis.Client, log *slog.Logger, ttl time.Duration) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &RedisStorage{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

func (s *RedisStorage) GetState(ctx context.Context, key Key) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get session from redis", slog.String("session", key.String()), slog.Any("error", err))
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.log.Error("failed to decode session", slog.String("session", key.String()), slog.Any("error", err))
		return nil, err
	}

	return &session, nil
}

func (s *RedisStorage) SetState(ctx context.Context, key Key, session *Session) error {
	session.Key = key
	session.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(key), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save session in redis", slog.String("session", key.String()), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStorage) ClearState(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, sessionKey(key)).Err(); err != nil {
		s.log.Error("failed to clear session", slog.String("session", key.String()), slog.Any("error", err))
		return err
	}

	return nil
}

// GetAllStates scans every session key. Undecodable entries are skipped.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*Session, error) {
	var (
		cursor uint64
		result []*Session
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionScanPattern, sessionScanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, fmt.Errorf("get session %s: %w", key, err)
			}

			var session Session
			if err := json.Unmarshal(data, &session); err != nil {
				s.log.Warn("skipping undecodable session", slog.String("key", key), slog.Any("error", err))
				continue
			}
			result = append(result, &session)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func sessionKey(key Key) string {
	return fmt.Sprintf(sessionKeyPattern, key.ChatID, key.UserID)
}
