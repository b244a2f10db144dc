// Package state manages per-member conversation state for the bot.
package state

import "context"

// Storage defines the persistence contract for FSM sessions.
type Storage interface {
	// GetState returns the current session or ErrStateNotFound.
	GetState(ctx context.Context, key Key) (*Session, error)
	// SetState saves the provided session.
	SetState(ctx context.Context, key Key, session *Session) error
	// ClearState removes the session.
	ClearState(ctx context.Context, key Key) error
	// GetAllStates returns every stored session.
	GetAllStates(ctx context.Context) ([]*Session, error)
}
