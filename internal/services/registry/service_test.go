package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertador/internal/adapters/memory"
	"alertador/internal/domain"
)

func TestSubscribeIsIdempotent(t *testing.T) {
	svc := New(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, svc.Subscribe(ctx, "alice"))
	require.NoError(t, svc.Subscribe(ctx, "alice"))

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, active)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	svc := New(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, svc.Subscribe(ctx, "alice"))
	require.NoError(t, svc.Unsubscribe(ctx, "alice"))
	require.NoError(t, svc.Unsubscribe(ctx, "alice"))
	require.NoError(t, svc.Unsubscribe(ctx, "never-subscribed"))

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPausedSubscribersAreNotActive(t *testing.T) {
	svc := New(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, svc.Subscribe(ctx, "alice"))
	require.NoError(t, svc.Subscribe(ctx, "bob"))
	require.NoError(t, svc.Pause(ctx, "bob"))

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, active)

	require.NoError(t, svc.Resume(ctx, "bob"))
	active, err = svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, active)
}

func TestPauseUnknownSubscriber(t *testing.T) {
	svc := New(memory.NewStore())
	err := svc.Pause(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
