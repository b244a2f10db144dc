package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionLockKeyPattern = "fsm:lock:%d:%d"
	lockTTL               = 5 * time.Second
)

var (
	// ErrInvalidTransition indicates that a requested FSM transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a session record does not exist.
	ErrStateNotFound = errors.New("session not found")
	// ErrStateLocked indicates that a concurrent operation already holds the lock.
	ErrStateLocked = errors.New("state is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe FSM transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// StateMachine describes the operations supported by the FSM controller.
type StateMachine interface {
	GetState(ctx context.Context, key Key) (*Session, error)
	SetState(ctx context.Context, key Key, state State, data Data) error
	TransitionTo(ctx context.Context, key Key, newState State, data Data) error
	ClearState(ctx context.Context, key Key) error
	GetAllStates(ctx context.Context) ([]*Session, error)
}

type machine struct {
	storage     Storage
	log         *slog.Logger
	redisClient *redis.Client
}

// NewStateMachine creates a FSM controller. A nil redisClient disables locking.
func NewStateMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) StateMachine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage:     storage,
		log:         log,
		redisClient: redisClient,
	}
}

func (m *machine) GetState(ctx context.Context, key Key) (*Session, error) {
	return m.storage.GetState(ctx, key)
}

func (m *machine) GetAllStates(ctx context.Context) ([]*Session, error) {
	return m.storage.GetAllStates(ctx)
}

// SetState overwrites the session without validating the transition.
func (m *machine) SetState(ctx context.Context, key Key, state State, data Data) error {
	if err := m.lock(ctx, key); err != nil {
		return err
	}
	defer m.unlock(ctx, key)

	return m.saveState(ctx, key, state, data)
}

// TransitionTo changes the state if the transition is allowed, guarded by a lock.
func (m *machine) TransitionTo(ctx context.Context, key Key, newState State, data Data) error {
	if err := m.lock(ctx, key); err != nil {
		return err
	}
	defer m.unlock(ctx, key)

	current := StateIdle

	stored, err := m.storage.GetState(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			return err
		}
	} else if stored != nil {
		current = stored.CurrentState
	}

	if !IsTransitionAllowed(current, newState) {
		m.log.Warn("invalid state transition",
			slog.Int64("chat_id", key.ChatID),
			slog.Int64("user_id", key.UserID),
			slog.String("from", string(current)),
			slog.String("to", string(newState)),
		)
		return ErrInvalidTransition
	}

	transitionRecorder(string(current), string(newState))

	return m.saveState(ctx, key, newState, data)
}

func (m *machine) ClearState(ctx context.Context, key Key) error {
	if err := m.lock(ctx, key); err != nil {
		return err
	}
	defer m.unlock(ctx, key)

	return m.storage.ClearState(ctx, key)
}

func (m *machine) saveState(ctx context.Context, key Key, state State, data Data) error {
	return m.storage.SetState(ctx, key, &Session{
		Key:          key,
		CurrentState: state,
		Data:         data,
	})
}

func (m *machine) lock(ctx context.Context, key Key) error {
	if m.redisClient == nil {
		return nil
	}

	lockKey := fmt.Sprintf(sessionLockKeyPattern, key.ChatID, key.UserID)
	acquired, err := m.redisClient.SetNX(ctx, lockKey, 1, lockTTL).Result()
	if err != nil {
		m.log.Error("failed to acquire session lock", slog.String("session", key.String()), slog.Any("error", err))
		return err
	}

	if !acquired {
		m.log.Warn("session lock already held", slog.String("session", key.String()))
		return ErrStateLocked
	}

	return nil
}

func (m *machine) unlock(ctx context.Context, key Key) {
	if m.redisClient == nil {
		return
	}

	lockKey := fmt.Sprintf(sessionLockKeyPattern, key.ChatID, key.UserID)
	if err := m.redisClient.Del(ctx, lockKey).Err(); err != nil {
		m.log.Error("failed to release session lock", slog.String("session", key.String()), slog.Any("error", err))
	}
}
