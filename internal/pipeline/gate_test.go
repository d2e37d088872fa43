package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_BoundsCapacity(t *testing.T) {
	g := newGate(2)
	ctx := context.Background()

	require.NoError(t, g.acquire(ctx))
	require.NoError(t, g.acquire(ctx))
	assert.Equal(t, 2, g.held())

	third := make(chan error, 1)
	go func() { third <- g.acquire(ctx) }()

	select {
	case err := <-third:
		t.Fatalf("third acquire should block, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	g.release()
	select {
	case err := <-third:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acquire did not proceed after release")
	}
	assert.Equal(t, 2, g.held())
}

func TestGate_AcquireObservesCancellation(t *testing.T) {
	g := newGate(1)
	require.NoError(t, g.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, g.held())
}

func TestGate_MinimumCapacity(t *testing.T) {
	g := newGate(0)

	require.NoError(t, g.acquire(context.Background()))
	assert.Equal(t, 1, g.held())

	g.release()
	assert.Equal(t, 0, g.held())
}
