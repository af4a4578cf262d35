package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(10, time.Hour)

	claimed, err := ledger.Claim(ctx, "acme:evt_1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = ledger.Claim(ctx, "acme:evt_1")
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = ledger.Claim(ctx, "other:evt_1")
	require.NoError(t, err)
	assert.True(t, claimed, "identifiers are scoped per tenant key")

	require.NoError(t, ledger.Release(ctx, "acme:evt_1"))
	require.NoError(t, ledger.Release(ctx, "never-claimed"))

	claimed, err = ledger.Claim(ctx, "acme:evt_1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryLedger_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ledger := NewMemoryLedger(10, time.Minute)
	ledger.now = func() time.Time { return now }

	claimed, _ := ledger.Claim(ctx, "k")
	assert.True(t, claimed)

	now = now.Add(59 * time.Second)
	claimed, _ = ledger.Claim(ctx, "k")
	assert.False(t, claimed)

	now = now.Add(2 * time.Second)
	claimed, _ = ledger.Claim(ctx, "k")
	assert.True(t, claimed)
	assert.Equal(t, 1, ledger.Len())
}

func TestMemoryLedger_Capacity(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(3, time.Hour)

	for i := range 5 {
		claimed, err := ledger.Claim(ctx, fmt.Sprintf("k%d", i))
		require.NoError(t, err)
		assert.True(t, claimed)
	}

	assert.Equal(t, 3, ledger.Len())

	claimed, _ := ledger.Claim(ctx, "k0")
	assert.True(t, claimed, "oldest entries are evicted first")

	claimed, _ = ledger.Claim(ctx, "k4")
	assert.False(t, claimed)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	signature := Sign("secret", body)

	assert.Len(t, signature, 64)
	assert.True(t, Verify("secret", body, signature))
	assert.True(t, Verify("secret", body, "sha256="+signature))
	assert.False(t, Verify("other", body, signature))
	assert.False(t, Verify("", body, Sign("", body)))
	assert.False(t, Verify("secret", body, signature[:10]))
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent("acme", []byte(`{"id":"evt_1","type":"invoice.paid","data":{"amount":5},"created":1700000000}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "invoice.paid", event.Type)
	assert.Equal(t, "acme", event.TenantID)
	assert.InDelta(t, 5.0, event.Payload["amount"], 0)

	event, err = ParseEvent("acme", []byte(`{"id":"evt_2","type":"ping"}`))
	require.NoError(t, err)
	assert.Empty(t, event.Payload)

	_, err = ParseEvent("acme", []byte(`{"id":"","type":"ping"}`))
	require.Error(t, err)

	_, err = ParseEvent("acme", []byte(`{"id":"evt","type":"ping","data":"text"}`))
	require.Error(t, err)
}
