package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playcell/bingo-backend/internal/eventbus"
)

const (
	// frameInterval is the scheduling granularity of the tick loop. The
	// countdown never trusts it: elapsed wall-clock time is measured on
	// every callback, so late or missed frames are compensated in one
	// step.
	frameInterval = 50 * time.Millisecond

	// driftCheckInterval is how often the displayed value is compared
	// against the fixed wall-clock anchor.
	driftCheckInterval = 5 * time.Second

	// driftThreshold is the discrepancy, in seconds, past which the
	// displayed value is hard-corrected to the anchor-derived one.
	driftThreshold = 2

	// minRestoreSeconds guards restoration: persisted countdowns below
	// this are discarded rather than resumed.
	minRestoreSeconds = 5
)

// PersistedState is the snapshot written to short-lived storage so an
// accidental page reload does not silently reset an in-progress countdown.
type PersistedState struct {
	Remaining int   `json:"remaining"`
	IsRunning bool  `json:"is_running"`
	IsPaused  bool  `json:"is_paused"`
	SavedAt   int64 `json:"saved_at"`
}

// StateStore persists countdown snapshots across reloads.
type StateStore interface {
	Save(ctx context.Context, sessionID string, state PersistedState) error
	Load(ctx context.Context, sessionID string) (PersistedState, bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// Countdown is a drift-corrected countdown timer. The tick loop measures
// real elapsed time between callbacks and decrements by whole seconds only;
// a slower secondary check hard-corrects against a fixed anchor.
type Countdown struct {
	mu sync.Mutex

	logger *slog.Logger
	clock  clockwork.Clock
	bus    *eventbus.Bus

	sessionID string
	store     StateStore

	time       int
	isRunning  bool
	isPaused   bool
	pausedTime int

	lastTick time.Time
	carry    time.Duration

	anchor        time.Time
	anchorSeconds int
	lastDriftScan time.Time

	onExpire     func()
	expiredFired bool

	stop chan struct{}
	done chan struct{}
}

type Option func(*Countdown)

// WithClock injects a clock; tests pass a clockwork fake.
func WithClock(clock clockwork.Clock) Option {
	return func(that *Countdown) {
		that.clock = clock
	}
}

// WithStore enables persistence of the countdown for the given session.
func WithStore(store StateStore, sessionID string) Option {
	return func(that *Countdown) {
		that.store = store
		that.sessionID = sessionID
	}
}

func WithBus(bus *eventbus.Bus) Option {
	return func(that *Countdown) {
		that.bus = bus
	}
}

func New(logger *slog.Logger, seconds int, onExpire func(), opts ...Option) *Countdown {
	countdown := &Countdown{
		logger:   logger.With("component", "timer"),
		clock:    clockwork.NewRealClock(),
		time:     seconds,
		onExpire: onExpire,
	}

	for _, opt := range opts {
		opt(countdown)
	}

	return countdown
}

// Restore replaces the countdown value with a persisted snapshot if one
// exists and is still above the restore threshold.
func (that *Countdown) Restore(ctx context.Context) {
	if that.store == nil {
		return
	}

	state, ok, err := that.store.Load(ctx, that.sessionID)
	if err != nil {
		that.logger.Error("failed to load persisted timer state", "error", err)
		return
	}

	if !ok || state.Remaining < minRestoreSeconds {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.time = state.Remaining
	that.isPaused = state.IsPaused
	that.pausedTime = state.Remaining
}

// Remaining returns the current countdown value in whole seconds.
func (that *Countdown) Remaining() int {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.time
}

func (that *Countdown) IsRunning() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.isRunning
}

func (that *Countdown) IsPaused() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.isPaused
}

// Start begins the tick loop. Starting an already-running or expired
// countdown is a no-op.
func (that *Countdown) Start() {
	that.mu.Lock()
	if that.isRunning || that.time <= 0 {
		that.mu.Unlock()
		return
	}

	now := that.clock.Now()
	that.isRunning = true
	that.isPaused = false
	that.lastTick = now
	that.carry = 0
	that.anchor = now
	that.anchorSeconds = that.time
	that.lastDriftScan = now
	that.stop = make(chan struct{})
	that.done = make(chan struct{})
	stop, done := that.stop, that.done
	that.mu.Unlock()

	go that.run(stop, done)
}

func (that *Countdown) run(stop, done chan struct{}) {
	defer close(done)

	ticker := that.clock.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if expired := that.Tick(); expired {
				return
			}
		}
	}
}

// Tick is one frame callback: it folds the wall-clock delta since the last
// callback into the countdown, decrementing by however many whole seconds
// elapsed in a single step. Returns true once the countdown has expired.
func (that *Countdown) Tick() bool {
	that.mu.Lock()

	if !that.isRunning || that.isPaused {
		that.mu.Unlock()
		return false
	}

	now := that.clock.Now()
	that.carry += now.Sub(that.lastTick)
	that.lastTick = now

	// Ticks are announced after the lock is released so a subscriber may
	// call back into the countdown without deadlocking.
	announce := -1

	if whole := int(that.carry / time.Second); whole > 0 {
		that.carry -= time.Duration(whole) * time.Second
		that.time -= whole
		if that.time < 0 {
			that.time = 0
		}
		announce = that.time
	}

	if that.driftScan(now) {
		announce = that.time
	}

	if that.time <= 0 {
		that.isRunning = false
		fire := !that.expiredFired
		that.expiredFired = true
		that.mu.Unlock()

		if announce >= 0 {
			that.publishTick(announce)
		}
		if fire {
			that.fireExpiry()
		}
		return true
	}

	that.mu.Unlock()

	if announce >= 0 {
		that.publishTick(announce)
	}
	return false
}

// driftScan is the secondary correction: every driftCheckInterval the
// displayed value is compared with what the fixed anchor says it should be,
// and snapped to it when the discrepancy exceeds the threshold. Reports
// whether a correction happened so the caller can announce the new value.
func (that *Countdown) driftScan(now time.Time) bool {
	if now.Sub(that.lastDriftScan) < driftCheckInterval {
		return false
	}
	that.lastDriftScan = now

	expected := that.anchorSeconds - int(now.Sub(that.anchor)/time.Second)
	if expected < 0 {
		expected = 0
	}

	if diff := that.time - expected; diff > driftThreshold || diff < -driftThreshold {
		that.logger.Warn("countdown drifted, hard-correcting", "displayed", that.time, "expected", expected)
		that.time = expected
		that.carry = 0
		return true
	}

	return false
}

// Pause stops scheduling and snapshots the remaining time. Time spent
// paused is never replayed.
func (that *Countdown) Pause() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.isRunning || that.isPaused {
		return
	}

	that.isPaused = true
	that.pausedTime = that.time
}

// Resume re-anchors the wall-clock reference to now before scheduling
// continues, so the pause gap does not count as elapsed time.
func (that *Countdown) Resume() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.isRunning || !that.isPaused {
		return
	}

	now := that.clock.Now()
	that.isPaused = false
	that.lastTick = now
	that.carry = 0
	that.anchor = now
	that.anchorSeconds = that.time
	that.lastDriftScan = now
}

// Stop halts the loop and persists the current state so a reload can pick
// the countdown back up.
func (that *Countdown) Stop(ctx context.Context) {
	that.mu.Lock()
	if that.stop != nil {
		select {
		case <-that.stop:
		default:
			close(that.stop)
		}
	}
	that.isRunning = false
	state := PersistedState{
		Remaining: that.time,
		IsRunning: false,
		IsPaused:  that.isPaused,
		SavedAt:   that.clock.Now().UnixMilli(),
	}
	done := that.done
	that.mu.Unlock()

	if done != nil {
		<-done
	}

	if that.store != nil {
		if err := that.store.Save(ctx, that.sessionID, state); err != nil {
			that.logger.Error("failed to persist timer state", "error", err)
		}
	}
}

func (that *Countdown) fireExpiry() {
	if that.bus != nil {
		that.bus.Publish(eventbus.TopicTimerExpired, that.sessionID)
	}

	if that.onExpire != nil {
		that.onExpire()
	}

	if that.store != nil {
		if err := that.store.Clear(context.Background(), that.sessionID); err != nil {
			that.logger.Error("failed to clear persisted timer state", "error", err)
		}
	}
}

func (that *Countdown) publishTick(remaining int) {
	if that.bus != nil {
		that.bus.Publish(eventbus.TopicTimerTick, remaining)
	}
}
