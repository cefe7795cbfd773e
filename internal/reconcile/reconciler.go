package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/remotestore"
)

const (
	// debounceWindow coalesces rapid local mutations into one remote
	// write carrying only the latest state.
	debounceWindow = 50 * time.Millisecond

	maxFetchAttempts     = 3
	fetchBackoffBase     = 500 * time.Millisecond
	maxReconnectAttempts = 5
	reconnectBackoffBase = time.Second
)

// boardHolder is the slice of the game engine the reconciler needs: read
// the current board, overwrite it with a merged one.
type boardHolder interface {
	Board() []entity.BoardCell
	UpdateBoardState(state []entity.BoardCell) error
}

// Reconciler keeps the local board consistent with the remote authoritative
// copy without ever losing a local-only mark: inbound snapshots are merged
// by color-set union, outbound writes are debounced and rolled back on
// failure.
type Reconciler struct {
	logger *slog.Logger
	clock  clockwork.Clock

	store  remotestore.Store
	engine boardHolder

	sessionID string

	mu                sync.Mutex
	session           *entity.GameSession
	lastSynced        []entity.BoardCell
	lastSyncedVersion int64
	debounce          clockwork.Timer
	unsubscribe       func()
	pendingCount      atomic.Int32

	onError func(error)
}

type Option func(*Reconciler)

func WithClock(clock clockwork.Clock) Option {
	return func(that *Reconciler) {
		that.clock = clock
	}
}

// WithErrorHandler surfaces write failures; the default just logs.
func WithErrorHandler(fn func(error)) Option {
	return func(that *Reconciler) {
		that.onError = fn
	}
}

func New(logger *slog.Logger, store remotestore.Store, engine boardHolder, sessionID string, opts ...Option) *Reconciler {
	reconciler := &Reconciler{
		logger:    logger.With("component", "reconciler", "session", sessionID),
		clock:     clockwork.NewRealClock(),
		store:     store,
		engine:    engine,
		sessionID: sessionID,
	}

	for _, opt := range opts {
		opt(reconciler)
	}

	return reconciler
}

// FetchInitial loads the authoritative session with bounded linear-backoff
// retry. Only transient-looking errors are retried; anything else fails on
// the spot.
func (that *Reconciler) FetchInitial(ctx context.Context) (*entity.GameSession, error) {
	var lastErr error

	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		row, err := that.store.Select(ctx, sessionKey(that.sessionID))
		if err == nil {
			session, decodeErr := decodeSession(row)
			if decodeErr != nil {
				return nil, decodeErr
			}

			that.mu.Lock()
			that.session = session
			that.lastSynced = entity.CloneBoard(session.BoardState)
			that.lastSyncedVersion = session.Version
			that.mu.Unlock()

			return session, nil
		}

		if !isTemporary(err) {
			return nil, fmt.Errorf("failed to fetch session: %w", err)
		}

		lastErr = err
		that.logger.Warn("fetch failed, retrying", "attempt", attempt, "error", err)

		if attempt == maxFetchAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
		case <-that.clock.After(fetchBackoffBase * time.Duration(attempt)):
		}
	}

	return nil, fmt.Errorf("%w: %w", apperror.ErrRetryExhausted, lastErr)
}

// AdoptSession points outbound writes at the caller's live session row.
// Used when the initial fetch could not supply one; the reconciler then
// still carries the row's current status and version on every flush.
func (that *Reconciler) AdoptSession(session *entity.GameSession) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.session = session
	that.lastSynced = entity.CloneBoard(session.BoardState)
	that.lastSyncedVersion = session.Version
}

// Subscribe attaches to the session's push channel, reconnecting with its
// own bounded linear backoff, independent of the fetch retry counter.
func (that *Reconciler) Subscribe(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		unsubscribe, err := that.store.Subscribe(ctx, sessionKey(that.sessionID), that.handleEvent)
		if err == nil {
			that.mu.Lock()
			that.unsubscribe = unsubscribe
			that.mu.Unlock()
			return nil
		}

		lastErr = err
		that.logger.Warn("subscribe failed, retrying", "attempt", attempt, "error", err)

		if attempt == maxReconnectAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("subscribe canceled: %w", ctx.Err())
		case <-that.clock.After(reconnectBackoffBase * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("%w: %w", apperror.ErrRetryExhausted, lastErr)
}

// handleEvent merges an inbound remote snapshot into the local board. Local
// moves already applied are never reordered or dropped; the remote only
// contributes additional colors.
func (that *Reconciler) handleEvent(event remotestore.Event) {
	if event.Type == remotestore.EventDelete || len(event.New) == 0 {
		return
	}

	remote, err := decodeSession(event.New)
	if err != nil {
		that.logger.Error("failed to decode pushed session", "error", err)
		return
	}

	merged := MergeBoards(that.engine.Board(), remote.BoardState)

	if err = that.engine.UpdateBoardState(merged); err != nil {
		that.logger.Error("failed to apply merged board", "error", err)
		return
	}

	// The session row the owning service shares with us stays the same
	// object; the push only folds in the merged board and a forward
	// version, never stale remote status.
	that.mu.Lock()
	if that.session != nil {
		that.session.BoardState = entity.CloneBoard(merged)
		if remote.Version > that.session.Version {
			that.session.Version = remote.Version
		}
	}
	that.lastSynced = entity.CloneBoard(merged)
	if remote.Version > that.lastSyncedVersion {
		that.lastSyncedVersion = remote.Version
	}
	that.mu.Unlock()
}

// ScheduleWrite queues an outbound write of the current local state.
// Multiple calls within the debounce window coalesce into one write; the
// pending counter lets callers observe in-flight writes. The session row is
// marshaled here, under the caller's serialization, and the flush runs on a
// context detached from the caller's: the debounce outlives the request
// that scheduled it.
func (that *Reconciler) ScheduleWrite(ctx context.Context) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session := that.session
	if session == nil {
		return
	}

	session.BoardState = that.engine.Board()
	session.Version++

	row, err := json.Marshal(session)
	if err != nil {
		session.Version--
		that.surface(fmt.Errorf("failed to marshal session: %w", err))
		return
	}

	board := entity.CloneBoard(session.BoardState)
	version := session.Version
	snapshot := entity.CloneBoard(that.lastSynced)
	writeCtx := context.WithoutCancel(ctx)

	that.pendingCount.Add(1)

	if that.debounce != nil {
		that.debounce.Stop()
	}

	that.debounce = that.clock.AfterFunc(debounceWindow, func() {
		that.flush(writeCtx, session, row, board, version, snapshot)
	})
}

// PendingWrites reports the number of scheduled-but-unflushed writes.
func (that *Reconciler) PendingWrites() int {
	return int(that.pendingCount.Load())
}

// flush pushes the row captured at schedule time. On failure the local
// board rolls back to the deep-copied pre-write snapshot, the session
// version returns to the last synced one, and the error surfaces to the
// caller's handler; the caller may retry.
func (that *Reconciler) flush(ctx context.Context, session *entity.GameSession, row []byte, board []entity.BoardCell, version int64, snapshot []entity.BoardCell) {
	defer that.pendingCount.Store(0)

	if err := that.store.Update(ctx, sessionKey(that.sessionID), row); err != nil {
		if rollbackErr := that.engine.UpdateBoardState(snapshot); rollbackErr != nil {
			that.logger.Error("rollback failed", "error", rollbackErr)
		}

		that.mu.Lock()
		session.Version = that.lastSyncedVersion
		that.mu.Unlock()

		that.surface(fmt.Errorf("%w: %w", apperror.ErrVersionConflict, err))
		return
	}

	that.mu.Lock()
	that.lastSynced = board
	that.lastSyncedVersion = version
	that.mu.Unlock()
}

// ForceSync replaces the local board with the remote copy outright. This is
// the only path that can propagate remote removals.
func (that *Reconciler) ForceSync(ctx context.Context) error {
	session, err := that.FetchInitial(ctx)
	if err != nil {
		return err
	}

	if err = that.engine.UpdateBoardState(session.BoardState); err != nil {
		return fmt.Errorf("failed to apply fetched board: %w", err)
	}

	return nil
}

// Close tears down the subscription and any pending debounce timer.
// Resource leaks on unmount are the primary failure mode to avoid here.
func (that *Reconciler) Close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.debounce != nil {
		that.debounce.Stop()
		that.debounce = nil
	}

	if that.unsubscribe != nil {
		that.unsubscribe()
		that.unsubscribe = nil
	}
}

func (that *Reconciler) surface(err error) {
	that.logger.Error("remote write failed", "error", err)
	if that.onError != nil {
		that.onError(err)
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func decodeSession(row []byte) (*entity.GameSession, error) {
	var session entity.GameSession
	if err := json.Unmarshal(row, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}
