package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/bingo"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/eventbus"
	"github.com/playcell/bingo-backend/internal/reconcile"
	"github.com/playcell/bingo-backend/internal/remotestore"
	"github.com/playcell/bingo-backend/internal/timer"
)

type GamePlayService interface {
	JoinSession(ctx context.Context, sessionID, playerID, name string) (*entity.GameSession, *entity.Player, error)
	StartSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	PauseSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	ResumeSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	MarkCell(ctx context.Context, sessionID, playerID string, index int) (*entity.GameSession, error)
	EditCell(ctx context.Context, sessionID string, index int, text, difficulty string) (*entity.GameSession, error)
	ResetBoard(ctx context.Context, sessionID string) (*entity.GameSession, error)
	PatchSettings(ctx context.Context, sessionID string, settings entity.Settings) (*entity.GameSession, error)
	CloseSession(ctx context.Context, sessionID string)
}

// liveGame bundles everything a running session owns in memory: the engine
// that validates moves, the reconciler syncing the store, and the countdown.
type liveGame struct {
	session    *entity.GameSession
	engine     *bingo.Engine
	reconciler *reconcile.Reconciler
	countdown  *timer.Countdown
}

type gamePlayService struct {
	logger *slog.Logger
	bus    *eventbus.Bus
	clock  clockwork.Clock

	playerService  PlayerService
	sessionService SessionService
	store          remotestore.Store
	timerStore     timer.StateStore

	mu    sync.Mutex
	games map[string]*liveGame
}

type GamePlayOption func(*gamePlayService)

// WithClock injects a clock for the countdowns and debounce timers; tests
// pass a clockwork fake.
func WithClock(clock clockwork.Clock) GamePlayOption {
	return func(that *gamePlayService) {
		that.clock = clock
	}
}

func NewGamePlayService(logger *slog.Logger, bus *eventbus.Bus, playerService PlayerService, sessionService SessionService, store remotestore.Store, timerStore timer.StateStore, opts ...GamePlayOption) GamePlayService {
	service := &gamePlayService{
		logger:         logger.With("component", "gameplay"),
		bus:            bus,
		clock:          clockwork.NewRealClock(),
		playerService:  playerService,
		sessionService: sessionService,
		store:          store,
		timerStore:     timerStore,
		games:          make(map[string]*liveGame),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

func (that *gamePlayService) JoinSession(ctx context.Context, sessionID, playerID, name string) (*entity.GameSession, *entity.Player, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	session := live.session

	for _, p := range session.Players {
		if p.ID == playerID {
			return session, p, nil
		}
	}

	if len(session.Players) >= entity.MaxPlayers {
		return nil, nil, fmt.Errorf("%w: session id %s", apperror.ErrSessionFull, sessionID)
	}

	color, hoverColor, err := that.assignColor(session)
	if err != nil {
		return nil, nil, err
	}

	player, err := that.playerService.CreatePlayer(ctx, name, color, hoverColor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create player: %w", err)
	}

	if session.Settings.TeamMode {
		player.Team = len(session.Players) % 2
	}

	player.SessionID = session.ID
	if err = that.playerService.UpdatePlayer(ctx, player); err != nil {
		return nil, nil, fmt.Errorf("failed to update player: %w", err)
	}

	session.Players = append(session.Players, player)
	live.engine.SetPlayers(session.Players)

	if err = that.sessionService.UpdateSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to update session: %w", err)
	}

	return session, player, nil
}

// assignColor enforces color uniqueness per active player. In team mode the
// color is reused across one team, so a joining player copies a teammate's
// color when the team already exists.
func (that *gamePlayService) assignColor(session *entity.GameSession) (string, string, error) {
	if session.Settings.TeamMode {
		team := len(session.Players) % 2
		for _, p := range session.Players {
			if p.Team == team {
				return p.Color, p.HoverColor, nil
			}
		}
	}

	color, hoverColor, ok := NextFreeColor(session)
	if !ok {
		return "", "", apperror.ErrColorTaken
	}

	return color, hoverColor, nil
}

func (that *gamePlayService) StartSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	live.engine.Start()
	live.session.Status = entity.StatusActive

	if seconds := live.session.Settings.TimerSeconds; seconds > 0 && live.countdown == nil {
		live.countdown = timer.New(that.logger, seconds, func() {
			that.handleExpiry(sessionID)
		}, timer.WithStore(that.timerStore, sessionID), timer.WithBus(that.bus), timer.WithClock(that.clock))
		live.countdown.Restore(ctx)
		live.countdown.Start()
	}

	if err = that.sessionService.UpdateSession(ctx, live.session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return live.session, nil
}

// PauseSession freezes the game: moves are rejected and the countdown stops
// burning time until a resume.
func (that *gamePlayService) PauseSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if !live.session.IsActive() {
		return live.session, apperror.ErrGameIsNotStarted
	}

	live.engine.Pause()
	live.session.Status = entity.StatusPaused

	if live.countdown != nil {
		live.countdown.Pause()
	}

	if err = that.sessionService.UpdateSession(ctx, live.session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return live.session, nil
}

func (that *gamePlayService) ResumeSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if !live.session.IsPaused() {
		return live.session, apperror.ErrGameIsNotStarted
	}

	live.engine.Resume()
	live.session.Status = entity.StatusActive

	if live.countdown != nil {
		live.countdown.Resume()
	}

	if err = that.sessionService.UpdateSession(ctx, live.session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return live.session, nil
}

func (that *gamePlayService) MarkCell(ctx context.Context, sessionID, playerID string, index int) (*entity.GameSession, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session, countdown, err := that.applyMark(ctx, live, playerID, index)

	// The countdown stops outside the service lock: Stop waits for the
	// tick goroutine, and that goroutine takes the same lock inside the
	// expiry callback.
	if countdown != nil {
		countdown.Stop(ctx)
	}

	return session, err
}

func (that *gamePlayService) applyMark(ctx context.Context, live *liveGame, playerID string, index int) (*entity.GameSession, *timer.Countdown, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player := playerInSession(live.session, playerID)
	if player == nil {
		return nil, nil, fmt.Errorf("%w: player %s", apperror.ErrSessionNotFound, playerID)
	}

	if err := live.session.ConfirmActiveState(); err != nil {
		return live.session, nil, err
	}

	if err := live.engine.HandleCellClick(index, player); err != nil {
		return live.session, nil, err
	}

	live.session.BoardState = live.engine.Board()
	live.session.Status = live.engine.Status()

	var countdown *timer.Countdown

	if live.session.IsCompleted() {
		// The terminal row is persisted right away; the debounced write
		// below re-publishes it with the final board.
		if err := that.sessionService.UpdateSession(ctx, live.session); err != nil {
			that.logger.Error("failed to persist completed session", "error", err)
		}

		countdown = live.countdown
		live.countdown = nil
	}

	// The write is debounced: rapid clicks coalesce into one store write
	// carrying only the latest state.
	live.reconciler.ScheduleWrite(ctx)

	return live.session, countdown, nil
}

func (that *gamePlayService) EditCell(ctx context.Context, sessionID string, index int, text, difficulty string) (*entity.GameSession, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err = live.engine.HandleCellChange(index, text, difficulty); err != nil {
		return live.session, err
	}

	live.session.BoardState = live.engine.Board()
	live.reconciler.ScheduleWrite(ctx)

	return live.session, nil
}

func (that *gamePlayService) ResetBoard(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err = live.engine.ResetBoard(); err != nil {
		return live.session, err
	}

	live.session.BoardState = live.engine.Board()
	live.session.Status = entity.StatusInitializing

	if err = that.sessionService.UpdateSession(ctx, live.session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return live.session, nil
}

func (that *gamePlayService) PatchSettings(ctx context.Context, sessionID string, settings entity.Settings) (*entity.GameSession, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate settings: %w", err)
	}

	live, err := that.getLiveGame(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if live.session.Status != entity.StatusInitializing {
		return live.session, apperror.ErrInvalidSettings
	}

	resize := settings.BoardSize != live.session.Settings.BoardSize
	live.session.Settings = settings

	if resize {
		// A resize invalidates the grid; rebuild the engine around the
		// new dimensions.
		engine, buildErr := bingo.NewEngine(that.logger, that.bus, settings, live.session.Players, bingo.DefaultTaskPool)
		if buildErr != nil {
			return nil, fmt.Errorf("failed to rebuild engine: %w", buildErr)
		}
		live.engine = engine
		live.session.BoardState = engine.Board()
	}

	if err = that.sessionService.UpdateSession(ctx, live.session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.bus.Publish(eventbus.TopicSettingsChanged, sessionID)

	return live.session, nil
}

// CloseSession tears down the in-memory game: subscription, debounce timer
// and countdown all stop. Leaked handles are the failure mode this guards.
func (that *gamePlayService) CloseSession(ctx context.Context, sessionID string) {
	that.mu.Lock()
	live, ok := that.games[sessionID]
	if ok {
		delete(that.games, sessionID)
	}
	that.mu.Unlock()

	if !ok {
		return
	}

	live.reconciler.Close()
	if live.countdown != nil {
		live.countdown.Stop(ctx)
	}
}

func (that *gamePlayService) handleExpiry(sessionID string) {
	ctx := context.Background()

	that.mu.Lock()
	live, ok := that.games[sessionID]
	if !ok {
		that.mu.Unlock()
		return
	}

	verdict := live.engine.HandleTimeExpiry()
	live.session.BoardState = live.engine.Board()
	live.session.Status = live.engine.Status()
	live.countdown = nil
	that.mu.Unlock()

	that.logger.Info("timer expired", "session", sessionID, "verdict", verdict)

	if err := that.sessionService.UpdateSession(ctx, live.session); err != nil {
		that.logger.Error("failed to persist expired session", "error", err)
	}
}

// getLiveGame returns the in-memory game for the session, hydrating it from
// the store on first touch.
func (that *gamePlayService) getLiveGame(ctx context.Context, sessionID string) (*liveGame, error) {
	that.mu.Lock()
	if live, ok := that.games[sessionID]; ok {
		that.mu.Unlock()
		return live, nil
	}
	that.mu.Unlock()

	session, err := that.sessionService.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	engine, err := bingo.NewEngine(that.logger, that.bus, session.Settings, session.Players, bingo.DefaultTaskPool)
	if err != nil {
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	// The reconciler and the live game share one session row, so every
	// debounced flush carries the row's current status and version.
	reconciler := reconcile.New(that.logger, that.store, engine, session.ID, reconcile.WithClock(that.clock))
	if fetched, fetchErr := reconciler.FetchInitial(ctx); fetchErr != nil {
		that.logger.Warn("initial fetch failed, continuing with repo copy", "error", fetchErr)
		reconciler.AdoptSession(session)
	} else {
		session = fetched
	}

	if err = engine.AdoptState(session.Status, session.BoardState); err != nil {
		return nil, fmt.Errorf("failed to adopt session state: %w", err)
	}
	engine.SetPlayers(session.Players)

	live := &liveGame{
		session:    session,
		engine:     engine,
		reconciler: reconciler,
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if existing, ok := that.games[sessionID]; ok {
		reconciler.Close()
		return existing, nil
	}

	that.games[sessionID] = live

	return live, nil
}

func playerInSession(session *entity.GameSession, playerID string) *entity.Player {
	for _, p := range session.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}
