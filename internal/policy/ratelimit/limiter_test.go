package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysAfterBurst(t *testing.T) {
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()
	target := "https://api.funcionjudicial.gob.ec/x/contarCausas"

	require.NoError(t, l.Wait(ctx, target))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, target))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterIsPerHost(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/one"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/one"))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://a.example/"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := New(Config{RPS: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://a.example/")
	require.Error(t, err)
}
