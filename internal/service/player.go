package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/playcell/bingo-backend/internal/entity"
	"github.com/playcell/bingo-backend/internal/repository"
)

// palette pairs each assignable mark color with its hover variant.
var palette = [][2]string{
	{"red", "lightcoral"},
	{"blue", "lightblue"},
	{"green", "lightgreen"},
	{"orange", "navajowhite"},
	{"purple", "plum"},
	{"teal", "paleturquoise"},
	{"pink", "mistyrose"},
	{"yellow", "lemonchiffon"},
}

type PlayerService interface {
	CreatePlayer(ctx context.Context, name, color, hoverColor string) (*entity.Player, error)
	GetPlayerByID(ctx context.Context, id string) (*entity.Player, error)
	UpdatePlayer(ctx context.Context, player *entity.Player) error
}

type playerService struct {
	playerRepo repository.PlayerRepository
}

func NewPlayerService(playerRepo repository.PlayerRepository) PlayerService {
	return &playerService{
		playerRepo: playerRepo,
	}
}

func (that *playerService) CreatePlayer(ctx context.Context, name, color, hoverColor string) (*entity.Player, error) {
	player := &entity.Player{
		ID:         uuid.NewString(),
		Name:       name,
		Color:      color,
		HoverColor: hoverColor,
		Team:       entity.NoTeam,
	}

	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	return player, nil
}

func (that *playerService) GetPlayerByID(ctx context.Context, id string) (*entity.Player, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by id: %w", err)
	}

	return player, nil
}

func (that *playerService) UpdatePlayer(ctx context.Context, player *entity.Player) error {
	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	return nil
}

// NextFreeColor picks the first palette entry not yet claimed in the
// session. In team mode colors are reused per team, so the caller skips
// this and copies a teammate's color instead.
func NextFreeColor(session *entity.GameSession) (string, string, bool) {
	for _, pair := range palette {
		if session.PlayerByColor(pair[0]) == nil {
			return pair[0], pair[1], true
		}
	}

	return "", "", false
}
