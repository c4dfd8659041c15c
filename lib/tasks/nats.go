package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casesync-backend/lib/resilience"

	"github.com/nats-io/nats.go"
)

type NatsConfig struct {
	Url     string `json:"url"`
	Subject string `json:"subject"`
	// consumers sharing a group receive each task once
	Group string `json:"group"`
}

type Nats struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
}

func NewNats(config NatsConfig) (*Nats, error) {
	if config.Subject == "" {
		config.Subject = "casesync.tasks"
	}
	if config.Group == "" {
		config.Group = "workers"
	}

	conn, err := nats.Connect(
		config.Url,
		nats.Name("casesync-backend"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Nats{
		conn:     conn,
		subject:  config.Subject,
		group:    config.Group,
		executor: resilience.NewExecutor(resilience.DefaultConfig()),
	}, nil
}

func retryableNatsError(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrDisconnected)
}

func (q *Nats) Enqueue(ctx context.Context, kind string, payload any) error {
	task, err := NewTask(kind, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		err := q.conn.Publish(q.subject, data)
		if err != nil && !retryableNatsError(err) {
			return resilience.Permanent(fmt.Errorf("nats publish: %w", err))
		}
		return err
	})
}

func (q *Nats) Consume(ctx context.Context, handler Handler) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		var task Task
		err := json.Unmarshal(msg.Data, &task)
		if err != nil {
			slog.WarnContext(ctx, "dropping malformed task", "err", err)
			return
		}
		err = handler(ctx, task)
		if err != nil {
			slog.WarnContext(ctx, "task handler failed", "kind", task.Kind, "id", task.ID, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	err = q.conn.Flush()
	if err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	err = sub.Drain()
	if err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

func (q *Nats) Ping(ctx context.Context) error {
	if !q.conn.IsConnected() {
		return fmt.Errorf("nats: not connected (%s)", q.conn.Status().String())
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	return q.conn.FlushWithContext(ctx)
}

func (q *Nats) Close() error {
	q.conn.Close()
	return nil
}
