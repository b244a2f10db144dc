package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorageFailure = errors.New("storage error")

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetState(ctx context.Context, key Key) (*Session, error) {
	args := m.Called(ctx, key)
	session, _ := args.Get(0).(*Session)
	return session, args.Error(1)
}

func (m *mockStorage) SetState(ctx context.Context, key Key, session *Session) error {
	args := m.Called(ctx, key, session)
	return args.Error(0)
}

func (m *mockStorage) ClearState(ctx context.Context, key Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockStorage) GetAllStates(ctx context.Context) ([]*Session, error) {
	args := m.Called(ctx)
	sessions, _ := args.Get(0).([]*Session)
	return sessions, args.Error(1)
}

func TestStateMachine_TransitionTo(t *testing.T) {
	ctx := context.Background()
	key := Key{ChatID: -100, UserID: 42}
	log := testLogger()

	expense := &PendingExpense{Amount: decimal.NewFromInt(90), Currency: "USD", Description: "dinner"}

	testCases := []struct {
		name        string
		setupMocks  func(ms *mockStorage)
		newState    State
		expectedErr error
	}{
		{
			name: "successful transition",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, key).
					Return(&Session{CurrentState: StateIdle}, nil).Once()
				ms.On("SetState", mock.Anything, key, mock.MatchedBy(func(s *Session) bool {
					return s.CurrentState == StateExpenseSelecting && s.Data.Expense == expense
				})).Return(nil).Once()
			},
			newState:    StateExpenseSelecting,
			expectedErr: nil,
		},
		{
			name: "invalid transition",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, key).
					Return(&Session{CurrentState: StatePaymentAwaitingAmount}, nil).Once()
			},
			newState:    StateExpenseSelecting,
			expectedErr: ErrInvalidTransition,
		},
		{
			name: "new member transition",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, key).
					Return((*Session)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, key, mock.MatchedBy(func(s *Session) bool {
					return s.CurrentState == StateExpenseSelecting
				})).Return(nil).Once()
			},
			newState:    StateExpenseSelecting,
			expectedErr: nil,
		},
		{
			name: "storage failure",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, key).
					Return((*Session)(nil), errStorageFailure).Once()
			},
			newState:    StateExpenseSelecting,
			expectedErr: errStorageFailure,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			fsm := NewStateMachine(ms, log, nil)
			err := fsm.TransitionTo(ctx, key, tc.newState, Data{Expense: expense})

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestStateMachine_TransitionRecorder(t *testing.T) {
	var got []string
	RegisterTransitionRecorder(func(from, to string) {
		got = append(got, from+"->"+to)
	})
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	fsm := NewStateMachine(newInMemoryStorage(0), testLogger(), nil)
	key := Key{ChatID: 1, UserID: 2}

	require.NoError(t, fsm.TransitionTo(context.Background(), key, StatePaymentAwaitingAmount, Data{}))
	require.NoError(t, fsm.TransitionTo(context.Background(), key, StateIdle, Data{}))

	assert.Equal(t, []string{"idle->payment_awaiting_amount", "payment_awaiting_amount->idle"}, got)
}

func TestStateMachine_SetState(t *testing.T) {
	ctx := context.Background()
	key := Key{ChatID: -100, UserID: 11}

	testCases := []struct {
		name       string
		setupMocks func(ms *mockStorage)
		expectErr  error
	}{
		{
			name: "set state success",
			setupMocks: func(ms *mockStorage) {
				ms.On("SetState", mock.Anything, key, mock.MatchedBy(func(s *Session) bool {
					return s.CurrentState == StatePaymentAwaitingAmount && s.Data.Payment.CreditorID == 7
				})).Return(nil).Once()
			},
		},
		{
			name: "set state error",
			setupMocks: func(ms *mockStorage) {
				ms.On("SetState", mock.Anything, key, mock.Anything).
					Return(errStorageFailure).Once()
			},
			expectErr: errStorageFailure,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			fsm := NewStateMachine(ms, testLogger(), nil)
			err := fsm.SetState(ctx, key, StatePaymentAwaitingAmount, Data{Payment: &PendingPayment{CreditorID: 7}})

			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
			} else {
				assert.NoError(t, err)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestStateMachine_ClearState(t *testing.T) {
	ctx := context.Background()
	key := Key{ChatID: -100, UserID: 13}

	ms := &mockStorage{}
	ms.On("ClearState", mock.Anything, key).Return(nil).Once()

	fsm := NewStateMachine(ms, testLogger(), nil)
	assert.NoError(t, fsm.ClearState(ctx, key))

	ms.AssertExpectations(t)
}

func TestStateMachine_Lock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := newInMemoryStorage(100 * time.Millisecond)
	fsm := NewStateMachine(storage, testLogger(), client)

	ctx := context.Background()
	key := Key{ChatID: -5, UserID: 77}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- fsm.SetState(ctx, key, StateExpenseSelecting, Data{})
		}()
	}

	wg.Wait()
	close(errCh)

	var success, locked int
	for err := range errCh {
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, ErrStateLocked) {
			locked++
			continue
		}

		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, locked)
}

func TestStateMachine_LockIsPerMember(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := newInMemoryStorage(50 * time.Millisecond)
	fsm := NewStateMachine(storage, testLogger(), client)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fsm.SetState(ctx, Key{ChatID: -5, UserID: int64(i)}, StateExpenseSelecting, Data{})
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, cleanup
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type inMemoryStorage struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	delay    time.Duration
}

func newInMemoryStorage(delay time.Duration) *inMemoryStorage {
	return &inMemoryStorage{
		sessions: make(map[Key]*Session),
		delay:    delay,
	}
}

func (s *inMemoryStorage) GetState(ctx context.Context, key Key) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key]
	if !ok {
		return nil, ErrStateNotFound
	}

	copied := *session
	return &copied, nil
}

func (s *inMemoryStorage) SetState(ctx context.Context, key Key, session *Session) error {
	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[key] = &copied
	return nil
}

func (s *inMemoryStorage) ClearState(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}

func (s *inMemoryStorage) GetAllStates(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		result = append(result, &copied)
	}
	return result, nil
}
