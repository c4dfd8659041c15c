// Package tasks dispatches background work (participant matching) away from
// the request that produced it. Consumers must be idempotent, a task can be
// delivered more than once.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"casesync-backend/lib/timezone"

	"github.com/google/uuid"
)

type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func (t Task) Decode(out any) error {
	return json.Unmarshal(t.Payload, out)
}

func NewTask(kind string, payload any) (Task, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    encoded,
		EnqueuedAt: timezone.Now(),
	}, nil
}

type Handler func(ctx context.Context, task Task) error

type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any) error
	// Consume delivers tasks to handler until ctx is cancelled.
	Consume(ctx context.Context, handler Handler) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	// one of "memory" or "nats"
	Kind string     `json:"kind"`
	Nats NatsConfig `json:"nats"`
}

func Open(config Config) (Queue, error) {
	switch config.Kind {
	case "", "memory":
		return NewMemory(256), nil
	case "nats":
		return NewNats(config.Nats)
	}
	return nil, fmt.Errorf("unknown queue kind %q", config.Kind)
}
