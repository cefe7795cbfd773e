package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/remotestore"
)

// fakeStore is an in-memory remotestore.Store with scriptable failures.
type fakeStore struct {
	mu sync.Mutex

	rows       map[string][]byte
	selectErrs []error
	updateErr  error

	subscribeErrs []error
	onEvent       func(remotestore.Event)
	unsubscribed  bool

	updateCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]byte)}
}

func (that *fakeStore) Select(_ context.Context, key string) ([]byte, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.selectErrs) > 0 {
		err := that.selectErrs[0]
		that.selectErrs = that.selectErrs[1:]
		return nil, err
	}

	return that.rows[key], nil
}

func (that *fakeStore) Update(ctx context.Context, key string, row []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.updateCalls++
	if that.updateErr != nil {
		return that.updateErr
	}

	that.rows[key] = row
	return nil
}

func (that *fakeStore) Insert(_ context.Context, key string, row []byte) error {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.rows[key] = row
	return nil
}

func (that *fakeStore) Delete(_ context.Context, key string) error {
	that.mu.Lock()
	defer that.mu.Unlock()
	delete(that.rows, key)
	return nil
}

func (that *fakeStore) Subscribe(_ context.Context, _ string, onEvent func(remotestore.Event)) (func(), error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.subscribeErrs) > 0 {
		err := that.subscribeErrs[0]
		that.subscribeErrs = that.subscribeErrs[1:]
		return nil, err
	}

	that.onEvent = onEvent
	return func() {
		that.mu.Lock()
		defer that.mu.Unlock()
		that.unsubscribed = true
	}, nil
}

func (that *fakeStore) updates() int {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.updateCalls
}

func (that *fakeStore) row(key string) []byte {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.rows[key]
}

// fakeEngine satisfies the boardHolder slice of the game engine.
type fakeEngine struct {
	mu    sync.Mutex
	board []entity.BoardCell
}

func (that *fakeEngine) Board() []entity.BoardCell {
	that.mu.Lock()
	defer that.mu.Unlock()
	return entity.CloneBoard(that.board)
}

func (that *fakeEngine) UpdateBoardState(state []entity.BoardCell) error {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.board = entity.CloneBoard(state)
	return nil
}

func testSession(colors ...string) *entity.GameSession {
	board := []entity.BoardCell{cellWith("c1", colors...), cellWith("c2"), cellWith("c3"), cellWith("c4")}
	return &entity.GameSession{
		ID:         "s1",
		Status:     entity.StatusActive,
		BoardState: board,
		Version:    1,
	}
}

func seedStore(t *testing.T, store *fakeStore, session *entity.GameSession) {
	t.Helper()

	row, err := json.Marshal(session)
	require.NoError(t, err)
	store.rows["session:"+session.ID] = row
}

func newTestReconciler(store *fakeStore, engine *fakeEngine, clock clockwork.Clock, onError func(error)) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, store, engine, "s1", WithClock(clock), WithErrorHandler(onError))
}

func TestReconciler_FetchInitial(t *testing.T) {
	t.Run("Retries temporary errors with linear backoff", func(t *testing.T) {
		// Given: two transient failures before the row is served
		store := newFakeStore()
		seedStore(t, store, testSession("red"))
		store.selectErrs = []error{errors.New("i/o timeout"), errors.New("connection reset")}

		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, &fakeEngine{}, clock, nil)

		type result struct {
			session *entity.GameSession
			err     error
		}
		done := make(chan result, 1)
		go func() {
			session, err := reconciler.FetchInitial(context.Background())
			done <- result{session, err}
		}()

		// When: the backoff delays elapse
		for i := 1; i <= 2; i++ {
			clock.BlockUntil(1)
			clock.Advance(fetchBackoffBase * time.Duration(i))
		}

		// Then: the third attempt succeeds
		res := <-done
		require.NoError(t, res.err)
		assert.Equal(t, "s1", res.session.ID)
	})

	t.Run("Non-temporary errors fail immediately", func(t *testing.T) {
		// Given: a permanent failure
		store := newFakeStore()
		store.selectErrs = []error{errors.New("permission denied")}

		reconciler := newTestReconciler(store, &fakeEngine{}, clockwork.NewFakeClock(), nil)

		// When: fetching
		_, err := reconciler.FetchInitial(context.Background())

		// Then: no retry happened
		require.Error(t, err)
		assert.NotErrorIs(t, err, apperror.ErrRetryExhausted)
	})

	t.Run("Exhausted retries surface a typed error", func(t *testing.T) {
		// Given: nothing but transient failures
		store := newFakeStore()
		store.selectErrs = []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
		}

		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, &fakeEngine{}, clock, nil)

		done := make(chan error, 1)
		go func() {
			_, err := reconciler.FetchInitial(context.Background())
			done <- err
		}()

		for i := 1; i < maxFetchAttempts; i++ {
			clock.BlockUntil(1)
			clock.Advance(fetchBackoffBase * time.Duration(i))
		}

		// Then: the caller sees the retry-exhausted class
		assert.ErrorIs(t, <-done, apperror.ErrRetryExhausted)
	})
}

func TestReconciler_Debounce(t *testing.T) {
	t.Run("Rapid mutations coalesce into one write", func(t *testing.T) {
		// Given: a fetched session and three rapid schedule calls
		store := newFakeStore()
		seedStore(t, store, testSession())
		engine := &fakeEngine{}

		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, engine, clock, nil)
		_, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, engine.UpdateBoardState(testSession("red").BoardState))

		ctx := context.Background()
		reconciler.ScheduleWrite(ctx)
		reconciler.ScheduleWrite(ctx)
		reconciler.ScheduleWrite(ctx)

		// Then: all three are pending
		assert.Equal(t, 3, reconciler.PendingWrites())

		// When: the debounce window elapses
		clock.Advance(debounceWindow)

		// Then: exactly one write carried the latest state
		assert.Eventually(t, func() bool {
			return store.updates() == 1 && reconciler.PendingWrites() == 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestReconciler_WriteContext(t *testing.T) {
	t.Run("The debounced write survives the caller's canceled context", func(t *testing.T) {
		// Given: a fetched session and a mark scheduled from a short-lived
		// request context
		store := newFakeStore()
		seedStore(t, store, testSession())
		engine := &fakeEngine{}

		var surfaced error
		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, engine, clock, func(err error) { surfaced = err })
		_, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, engine.UpdateBoardState(testSession("red").BoardState))

		reqCtx, cancel := context.WithCancel(context.Background())
		reconciler.ScheduleWrite(reqCtx)
		cancel()

		// When: the debounce window elapses after the caller is gone
		clock.Advance(debounceWindow)

		// Then: the write lands and nothing rolls back
		assert.Eventually(t, func() bool {
			return store.updates() == 1
		}, time.Second, 5*time.Millisecond)
		assert.NoError(t, surfaced)
		assert.Equal(t, []string{"red"}, engine.Board()[0].Colors)
	})
}

func TestReconciler_FlushRow(t *testing.T) {
	t.Run("A flush carries the row's current status and version", func(t *testing.T) {
		// Given: a fetched session with a local mark on top
		store := newFakeStore()
		seedStore(t, store, testSession())
		engine := &fakeEngine{}

		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, engine, clock, nil)
		session, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, engine.UpdateBoardState(testSession("red").BoardState))

		// When: the owning service completes the game before the flush fires
		session.Status = entity.StatusCompleted
		reconciler.ScheduleWrite(context.Background())
		clock.Advance(debounceWindow)

		// Then: the stored row reflects the terminal status and a forward
		// version, not the snapshot fetched at hydration time
		assert.Eventually(t, func() bool {
			return store.updates() == 1
		}, time.Second, 5*time.Millisecond)

		stored, err := decodeSession(store.row("session:s1"))
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, stored.Status)
		assert.Equal(t, int64(2), stored.Version)
	})
}

func TestReconciler_Rollback(t *testing.T) {
	t.Run("A failed write restores the pre-write snapshot", func(t *testing.T) {
		// Given: a fetched baseline and an optimistic local mark on top
		store := newFakeStore()
		baseline := testSession()
		seedStore(t, store, baseline)
		engine := &fakeEngine{}

		var surfaced error
		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, engine, clock, func(err error) { surfaced = err })

		_, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, engine.UpdateBoardState(testSession("red").BoardState))

		// When: the remote write is rejected
		store.updateErr = errors.New("version check failed")
		reconciler.ScheduleWrite(context.Background())
		clock.Advance(debounceWindow)

		// Then: the local board rolls back and a typed error surfaces
		assert.Eventually(t, func() bool {
			return surfaced != nil
		}, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, surfaced, apperror.ErrVersionConflict)
		assert.Equal(t, baseline.BoardState, engine.Board())
	})
}

func TestReconciler_PushMerge(t *testing.T) {
	t.Run("Inbound snapshots union with local marks", func(t *testing.T) {
		// Given: a subscribed reconciler with a local-only red mark
		store := newFakeStore()
		seedStore(t, store, testSession())
		engine := &fakeEngine{}

		reconciler := newTestReconciler(store, engine, clockwork.NewFakeClock(), nil)
		_, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, engine.UpdateBoardState(testSession("red").BoardState))
		require.NoError(t, reconciler.Subscribe(context.Background()))

		// When: a remote snapshot with a blue mark arrives
		remoteRow, err := json.Marshal(testSession("blue"))
		require.NoError(t, err)
		store.onEvent(remotestore.Event{Type: remotestore.EventUpdate, New: remoteRow})

		// Then: the cell holds the union of both marks
		assert.ElementsMatch(t, []string{"red", "blue"}, engine.Board()[0].Colors)
	})

	t.Run("Delete events are ignored", func(t *testing.T) {
		// Given: a subscribed reconciler
		store := newFakeStore()
		seedStore(t, store, testSession("red"))
		engine := &fakeEngine{}

		reconciler := newTestReconciler(store, engine, clockwork.NewFakeClock(), nil)
		_, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, engine.UpdateBoardState(testSession("red").BoardState))
		require.NoError(t, reconciler.Subscribe(context.Background()))

		// When: a delete event arrives
		store.onEvent(remotestore.Event{Type: remotestore.EventDelete})

		// Then: local state is untouched
		assert.Equal(t, []string{"red"}, engine.Board()[0].Colors)
	})
}

func TestReconciler_Subscribe(t *testing.T) {
	t.Run("Reconnects with its own bounded retry", func(t *testing.T) {
		// Given: one subscription failure before success
		store := newFakeStore()
		store.subscribeErrs = []error{errors.New("connection refused")}

		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, &fakeEngine{}, clock, nil)

		done := make(chan error, 1)
		go func() {
			done <- reconciler.Subscribe(context.Background())
		}()

		clock.BlockUntil(1)
		clock.Advance(reconnectBackoffBase)

		// Then: the second attempt connects
		require.NoError(t, <-done)
		assert.NotNil(t, store.onEvent)
	})
}

func TestReconciler_Close(t *testing.T) {
	t.Run("Tears down the subscription and pending debounce", func(t *testing.T) {
		// Given: a subscribed reconciler with a pending write
		store := newFakeStore()
		seedStore(t, store, testSession())
		engine := &fakeEngine{}

		clock := clockwork.NewFakeClock()
		reconciler := newTestReconciler(store, engine, clock, nil)
		_, err := reconciler.FetchInitial(context.Background())
		require.NoError(t, err)
		require.NoError(t, reconciler.Subscribe(context.Background()))
		reconciler.ScheduleWrite(context.Background())

		// When: closing before the window elapses
		reconciler.Close()
		clock.Advance(debounceWindow * 2)

		// Then: no write fired and the subscription is gone
		assert.Equal(t, 0, store.updates())
		assert.True(t, store.unsubscribed)
	})
}
