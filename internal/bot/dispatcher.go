package bot

import (
	"errors"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/debtbot/internal/bot/handlers"
	"github.com/Proton-105/debtbot/internal/state"
)

// Dispatcher routes free text to the handler of the member's current state.
type Dispatcher struct {
	fsm           state.StateMachine
	stateHandlers map[state.State]handlers.Handler
	log           *slog.Logger
	mu            sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(fsm state.StateMachine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		fsm:           fsm,
		stateHandlers: make(map[state.State]handlers.Handler),
		log:           log,
	}
}

// RegisterStateHandler registers a handler for the provided state.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateHandlers[s] = h
}

// Lookup returns the handler for the session of the update's sender, or
// nil when the sender is idle or in a state nobody handles.
func (d *Dispatcher) Lookup(c telebot.Context) (handlers.Handler, error) {
	if c == nil || c.Sender() == nil {
		return nil, nil
	}

	key := state.Key{UserID: c.Sender().ID}
	if chat := c.Chat(); chat != nil {
		key.ChatID = chat.ID
	}

	current := state.StateIdle
	session, err := d.fsm.GetState(handlers.RequestContext(c), key)
	switch {
	case errors.Is(err, state.ErrStateNotFound):
	case err != nil:
		return nil, err
	case session != nil:
		current = session.CurrentState
	}

	return d.getHandler(current), nil
}

// Dispatch runs the state handler if there is one.
func (d *Dispatcher) Dispatch(c telebot.Context) (bool, error) {
	handler, err := d.Lookup(c)
	if err != nil || handler == nil {
		return false, err
	}
	return true, handler(c)
}

func (d *Dispatcher) getHandler(s state.State) handlers.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateHandlers[s]
}
