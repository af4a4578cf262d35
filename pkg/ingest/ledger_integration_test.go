package ingest

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func assertLedgerContract(t *testing.T, ledger Ledger) {
	t.Helper()

	ctx := context.Background()

	claimed, err := ledger.Claim(ctx, "acme:evt_1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = ledger.Claim(ctx, "acme:evt_1")
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, ledger.Release(ctx, "acme:evt_1"))

	claimed, err = ledger.Claim(ctx, "acme:evt_1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRedisLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "redis")
	require.NoError(t, err)

	ledger, err := NewRedisLedgerFromURL(ctx, endpoint, time.Minute)
	require.NoError(t, err)

	t.Cleanup(func() { _ = ledger.Close() })

	assertLedgerContract(t, ledger)

	ttl, err := ledger.client.TTL(ctx, ledger.prefix+"acme:evt_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = ledger.client.Get(ctx, ledger.prefix+"missing").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPostgresLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("packflow_test"),
		postgres.WithUsername("packflow"),
		postgres.WithPassword("packflow"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	ledger, err := NewPostgresLedger(ctx, discardLogger(), databaseURL, time.Hour)
	require.NoError(t, err)

	t.Cleanup(func() { _ = ledger.Close() })

	assertLedgerContract(t, ledger)

	purged, err := ledger.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}
