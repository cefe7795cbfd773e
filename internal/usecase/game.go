package usecase

import (
	"context"
	"fmt"

	"github.com/playcell/bingo-backend/internal/entity"
)

// GameUseCase is the surface the transports call into.
type GameUseCase interface {
	CreateSession(ctx context.Context, settings entity.Settings) (*entity.GameSession, error)
	GetSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	JoinSession(ctx context.Context, sessionID, playerID, name string) (*entity.GameSession, *entity.Player, error)
	StartSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	PauseSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	ResumeSession(ctx context.Context, sessionID string) (*entity.GameSession, error)
	PatchSession(ctx context.Context, sessionID string, settings entity.Settings) (*entity.GameSession, error)

	MarkCell(ctx context.Context, sessionID, playerID string, index int) (*entity.GameSession, error)
	EditCell(ctx context.Context, sessionID string, index int, text, difficulty string) (*entity.GameSession, error)
	ResetBoard(ctx context.Context, sessionID string) (*entity.GameSession, error)
	CloseSession(ctx context.Context, sessionID string)
}

type sessionService interface {
	CreateSession(ctx context.Context, settings entity.Settings) (*entity.GameSession, error)
	GetSessionByID(ctx context.Context, id string) (*entity.GameSession, error)
}

type gamePlayService interface {
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

type gameUseCase struct {
	sessionService  sessionService
	gamePlayService gamePlayService
}

func NewGameUseCase(sessionService sessionService, gamePlayService gamePlayService) GameUseCase {
	return &gameUseCase{
		sessionService:  sessionService,
		gamePlayService: gamePlayService,
	}
}

func (that *gameUseCase) CreateSession(ctx context.Context, settings entity.Settings) (*entity.GameSession, error) {
	session, err := that.sessionService.CreateSession(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) GetSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	session, err := that.sessionService.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) JoinSession(ctx context.Context, sessionID, playerID, name string) (*entity.GameSession, *entity.Player, error) {
	session, player, err := that.gamePlayService.JoinSession(ctx, sessionID, playerID, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to join session: %w", err)
	}

	return session, player, nil
}

func (that *gameUseCase) StartSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	session, err := that.gamePlayService.StartSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) PauseSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	session, err := that.gamePlayService.PauseSession(ctx, sessionID)
	if err != nil {
		return session, fmt.Errorf("failed to pause session: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) ResumeSession(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	session, err := that.gamePlayService.ResumeSession(ctx, sessionID)
	if err != nil {
		return session, fmt.Errorf("failed to resume session: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) PatchSession(ctx context.Context, sessionID string, settings entity.Settings) (*entity.GameSession, error) {
	session, err := that.gamePlayService.PatchSettings(ctx, sessionID, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to patch session: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) MarkCell(ctx context.Context, sessionID, playerID string, index int) (*entity.GameSession, error) {
	session, err := that.gamePlayService.MarkCell(ctx, sessionID, playerID, index)
	if err != nil {
		return session, fmt.Errorf("failed to mark cell: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) EditCell(ctx context.Context, sessionID string, index int, text, difficulty string) (*entity.GameSession, error) {
	session, err := that.gamePlayService.EditCell(ctx, sessionID, index, text, difficulty)
	if err != nil {
		return session, fmt.Errorf("failed to edit cell: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) ResetBoard(ctx context.Context, sessionID string) (*entity.GameSession, error) {
	session, err := that.gamePlayService.ResetBoard(ctx, sessionID)
	if err != nil {
		return session, fmt.Errorf("failed to reset board: %w", err)
	}

	return session, nil
}

func (that *gameUseCase) CloseSession(ctx context.Context, sessionID string) {
	that.gamePlayService.CloseSession(ctx, sessionID)
}
