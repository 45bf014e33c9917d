//go:build integration

package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, time.Minute)

	s, err := store.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StateIdle, s.State)

	require.NoError(t, store.Save(ctx, 42, Session{State: StateAwaitingPaymentResult, RequestID: "ws_CO_1"}))
	s, err = store.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingPaymentResult, s.State)
	require.Equal(t, "ws_CO_1", s.RequestID)

	ttl, err := client.TTL(ctx, key(42)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Reset(ctx, 42))
	s, err = store.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StateIdle, s.State)

	require.NoError(t, store.Save(ctx, 42, Session{State: StateAwaitingPaymentResult, RequestID: "ws_CO_B"}))
	reset, err := store.ResetIfRequest(ctx, 42, "ws_CO_A")
	require.NoError(t, err)
	require.False(t, reset)
	s, err = store.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "ws_CO_B", s.RequestID)

	reset, err = store.ResetIfRequest(ctx, 42, "ws_CO_B")
	require.NoError(t, err)
	require.True(t, reset)
	s, err = store.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StateIdle, s.State)
}
