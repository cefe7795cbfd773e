package remotestore

import (
	"context"
	"encoding/json"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one push notification from the remote store.
type Event struct {
	Type EventType       `json:"event_type"`
	New  json.RawMessage `json:"new,omitempty"`
	Old  json.RawMessage `json:"old,omitempty"`
}

// Store is the remote backend contract the core consumes. Rows are opaque
// JSON keyed by string; the push channel delivers change events per topic.
// Implementations live in internal/repository; the core only sees this
// interface so it stays testable without a real backend.
type Store interface {
	Select(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, row []byte) error
	Insert(ctx context.Context, key string, row []byte) error
	Delete(ctx context.Context, key string) error

	// Subscribe starts delivering events published for the topic until the
	// returned unsubscribe function is called.
	Subscribe(ctx context.Context, topic string, onEvent func(Event)) (func(), error)
}
