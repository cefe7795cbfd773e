package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playcell/bingo-backend/internal/timer"
)

// timerTTL bounds how long a persisted countdown survives. The snapshot
// only needs to outlive a page refresh, not a lunch break.
const timerTTL = 10 * time.Minute

type dbTimer struct {
	client *redis.Client
}

func NewTimerRepository(client *redis.Client) timer.StateStore {
	return &dbTimer{
		client: client,
	}
}

func (that *dbTimer) Save(ctx context.Context, sessionID string, state timer.PersistedState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal timer state: %w", err)
	}

	if err = that.client.Set(ctx, "timer:"+sessionID, stateJSON, timerTTL).Err(); err != nil {
		return fmt.Errorf("failed to set timer state: %w", err)
	}

	return nil
}

func (that *dbTimer) Load(ctx context.Context, sessionID string) (timer.PersistedState, bool, error) {
	response, err := that.client.Get(ctx, "timer:"+sessionID).Result()

	if errors.Is(err, redis.Nil) {
		return timer.PersistedState{}, false, nil
	}

	if err != nil {
		return timer.PersistedState{}, false, fmt.Errorf("failed to get timer state: %w", err)
	}

	var state timer.PersistedState
	if err = json.Unmarshal([]byte(response), &state); err != nil {
		return timer.PersistedState{}, false, fmt.Errorf("failed to unmarshal timer state: %w", err)
	}

	return state, true, nil
}

func (that *dbTimer) Clear(ctx context.Context, sessionID string) error {
	if err := that.client.Del(ctx, "timer:"+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to clear timer state: %w", err)
	}

	return nil
}
