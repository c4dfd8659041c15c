package tasks

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestNats(t *testing.T) {
	if os.Getenv("CASESYNC_CONTAINER_TESTS") != "1" {
		t.Skip("set CASESYNC_CONTAINER_TESTS=1 to run container backed tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
	})
	require.NoError(t, err)
	defer container.Terminate(context.Background())

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	queue, err := NewNats(NatsConfig{
		Url:     fmt.Sprintf("nats://%s:%s", host, port.Port()),
		Subject: "casesync.test",
	})
	require.NoError(t, err)
	defer queue.Close()
	require.NoError(t, queue.Ping(ctx))

	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	received := make(chan Task, 1)
	ready := make(chan error, 1)
	go func() {
		ready <- queue.Consume(consumeCtx, func(ctx context.Context, task Task) error {
			select {
			case received <- task:
			default:
			}
			return nil
		})
	}()

	// the subscription is registered asynchronously, publish until it is seen
	deadline := time.After(10 * time.Second)
	for {
		require.NoError(t, queue.Enqueue(ctx, "match_participant", matchPayload{ParticipantID: "p1"}))
		select {
		case task := <-received:
			var payload matchPayload
			require.NoError(t, task.Decode(&payload))
			require.Equal(t, "p1", payload.ParticipantID)
			stop()
			require.NoError(t, <-ready)
			return
		case <-time.After(200 * time.Millisecond):
		case <-deadline:
			t.Fatal("task was never delivered")
		}
	}
}
