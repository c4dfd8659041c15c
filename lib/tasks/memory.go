package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrClosed = errors.New("tasks: queue closed")
	ErrFull   = errors.New("tasks: queue full")
)

// Memory is an in-process queue with a single consumer, tasks are lost on
// restart.
type Memory struct {
	ch        chan Task
	closeOnce sync.Once
	done      chan struct{}
}

func NewMemory(buffer int) *Memory {
	return &Memory{
		ch:   make(chan Task, buffer),
		done: make(chan struct{}),
	}
}

func (m *Memory) Enqueue(ctx context.Context, kind string, payload any) error {
	task, err := NewTask(kind, payload)
	if err != nil {
		return err
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	// a full buffer drops the task instead of stalling the caller
	select {
	case m.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		slog.WarnContext(ctx, "memory queue full, dropping task", "kind", task.Kind, "id", task.ID)
		return ErrFull
	}
}

func (m *Memory) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case task := <-m.ch:
			err := handler(ctx, task)
			if err != nil {
				slog.WarnContext(ctx, "task handler failed", "kind", task.Kind, "id", task.ID, "err", err)
			}
		case <-m.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
