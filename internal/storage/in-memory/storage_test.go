package in_memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

func TestTelegramLinkStorage(t *testing.T) {
	s := NewTelegramLinkStorage()
	ctx := context.Background()
	workspaceID := uuid.New()

	_, err := s.GetWorkspaceIDForTelegramUser(ctx, 42)
	require.ErrorIs(t, err, model.ErrTelegramUserNotFound)

	require.NoError(t, s.LinkTelegramUser(ctx, 42, workspaceID))
	require.ErrorIs(t, s.LinkTelegramUser(ctx, 42, uuid.New()), ErrTelegramUserAlreadyLinked)

	got, err := s.GetWorkspaceIDForTelegramUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, workspaceID, got)
}

func TestPreferencesStorageCopiesPrayerToggles(t *testing.T) {
	s := NewPreferencesStorage()
	ctx := context.Background()
	id := uuid.New()

	_, err := s.GetPreferences(ctx, id)
	require.ErrorIs(t, err, model.ErrPreferencesNotFound)

	prefs := model.DefaultPreferences()
	require.NoError(t, s.SavePreferences(ctx, id, prefs))
	prefs.AdhanPrayers[model.PrayerFajr] = false

	got, err := s.GetPreferences(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.AdhanPrayers[model.PrayerFajr])
}
