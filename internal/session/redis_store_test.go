package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/heart-rhythm-day/internal/models"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisStore(client)
	require.NoError(t, store.Ping(ctx))

	d := &Descriptor{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		Category:  models.HighExertion,
		CreatedAt: time.Now().UTC(),
	}
	defer store.DeleteSession(ctx, d.ID)

	require.NoError(t, store.SetSession(ctx, d, time.Minute))

	got, err := store.GetSession(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, models.HighExertion, got.Category)

	list, err := store.ListSessions(ctx)
	require.NoError(t, err)
	found := false
	for _, item := range list {
		if item.ID == d.ID {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, store.Touch(ctx, d.ID, time.Minute))
	require.NoError(t, store.DeleteSession(ctx, d.ID))

	_, err = store.GetSession(ctx, d.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
