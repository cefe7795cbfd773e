package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/playcell/bingo-backend/internal/apperror"
	"github.com/playcell/bingo-backend/internal/remotestore"
)

// eventChannel namespaces the pub/sub channels carrying store events.
const eventChannel = "events:"

var ErrRowNotFound = errors.New("row not found")

var ErrRowExists = errors.New("row already exists")

// redisStore implements remotestore.Store on Redis: JSON rows under plain
// keys, push events over pub/sub channels named after the topic.
type redisStore struct {
	client *redis.Client
}

func NewRemoteStore(client *redis.Client) remotestore.Store {
	return &redisStore{
		client: client,
	}
}

func (that *redisStore) Select(ctx context.Context, key string) ([]byte, error) {
	row, err := that.client.Get(ctx, key).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, ErrRowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrNetwork, err)
	}

	return row, nil
}

func (that *redisStore) Update(ctx context.Context, key string, row []byte) error {
	old, err := that.client.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %w", apperror.ErrNetwork, err)
	}

	if err = that.client.Set(ctx, key, row, 0).Err(); err != nil {
		return fmt.Errorf("failed to update row: %w", err)
	}

	that.publish(ctx, key, remotestore.Event{Type: remotestore.EventUpdate, New: row, Old: old})

	return nil
}

func (that *redisStore) Insert(ctx context.Context, key string, row []byte) error {
	ok, err := that.client.SetNX(ctx, key, row, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}

	if !ok {
		return fmt.Errorf("%w: key %s", ErrRowExists, key)
	}

	that.publish(ctx, key, remotestore.Event{Type: remotestore.EventInsert, New: row})

	return nil
}

func (that *redisStore) Delete(ctx context.Context, key string) error {
	old, _ := that.client.Get(ctx, key).Bytes()

	if err := that.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete row: %w", err)
	}

	that.publish(ctx, key, remotestore.Event{Type: remotestore.EventDelete, Old: old})

	return nil
}

// Subscribe listens on the topic's pub/sub channel until unsubscribed. The
// receive loop exits when the pubsub is closed or the context is canceled.
func (that *redisStore) Subscribe(ctx context.Context, topic string, onEvent func(remotestore.Event)) (func(), error) {
	pubsub := that.client.Subscribe(ctx, eventChannel+topic)

	// Force the subscription to be established before returning so a
	// failure surfaces to the caller's retry policy.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %w", apperror.ErrNetwork, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var event remotestore.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			onEvent(event)
		}
	}()

	return func() {
		_ = pubsub.Close()
	}, nil
}

func (that *redisStore) publish(ctx context.Context, key string, event remotestore.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = that.client.Publish(ctx, eventChannel+key, payload).Err()
}
