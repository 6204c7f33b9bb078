package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

func openTestDB(t *testing.T) *PreferencesStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPreferencesStorage(db)
}

func TestPreferencesStorageRoundTrip(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := s.GetPreferences(ctx, id)
	require.ErrorIs(t, err, model.ErrPreferencesNotFound)

	prefs := model.DefaultPreferences()
	prefs.Theme = model.ThemeDark
	prefs.AdhanEnabled = true
	require.NoError(t, s.SavePreferences(ctx, id, prefs))

	got, err := s.GetPreferences(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, prefs, got)

	prefs.FontSize = 20
	prefs.AdhanPrayers[model.PrayerIsha] = false
	require.NoError(t, s.SavePreferences(ctx, id, prefs))

	got, err = s.GetPreferences(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 20, got.FontSize)
	assert.False(t, got.AdhanFor(model.PrayerIsha))
	assert.True(t, got.AdhanFor(model.PrayerFajr))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version;").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}
