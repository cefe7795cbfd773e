package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/playcell/bingo-backend/internal/bingo"
	"github.com/playcell/bingo-backend/internal/config"
	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/repository"
)

type SessionService interface {
	CreateSession(ctx context.Context, settings entity.Settings) (*entity.GameSession, error)
	GetSessionByID(ctx context.Context, id string) (*entity.GameSession, error)
	UpdateSession(ctx context.Context, session *entity.GameSession) error
	DeleteSession(ctx context.Context, id string) error
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	defaults    config.Game
}

func NewSessionService(sessionRepo repository.SessionRepository, defaults config.Game) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		defaults:    defaults,
	}
}

func (that *sessionService) CreateSession(ctx context.Context, settings entity.Settings) (*entity.GameSession, error) {
	// A zero value means the client did not choose; fall back to the
	// configured defaults.
	if settings.BoardSize == 0 {
		settings.BoardSize = that.defaults.DefaultBoardSize
	}
	if settings.TimerSeconds == 0 {
		settings.TimerSeconds = that.defaults.TimerSeconds
	}
	if !settings.WinConditions.Line && !settings.WinConditions.Majority {
		settings.WinConditions.Line = true
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate settings: %w", err)
	}

	board, err := bingo.GenerateBoard(settings.BoardSize, bingo.DefaultTaskPool)
	if err != nil {
		return nil, fmt.Errorf("failed to generate board: %w", err)
	}

	session := &entity.GameSession{
		ID:         uuid.NewString(),
		BoardID:    uuid.NewString(),
		Status:     entity.StatusInitializing,
		BoardState: board,
		Settings:   settings,
		Version:    1,
	}

	if err = that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (that *sessionService) GetSessionByID(ctx context.Context, id string) (*entity.GameSession, error) {
	session, err := that.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// UpdateSession persists the session, bumping the monotonic version.
func (that *sessionService) UpdateSession(ctx context.Context, session *entity.GameSession) error {
	session.Version++

	if err := that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

func (that *sessionService) DeleteSession(ctx context.Context, id string) error {
	if err := that.sessionRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
