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

func TestTelegramLinkStorage(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewTelegramLinkStorage(db)
	ctx := context.Background()

	_, err = s.GetWorkspaceIDForTelegramUser(ctx, 42)
	require.ErrorIs(t, err, model.ErrTelegramUserNotFound)

	first := uuid.New()
	require.NoError(t, s.LinkTelegramUser(ctx, 42, first))
	require.ErrorIs(t, s.LinkTelegramUser(ctx, 42, uuid.New()), ErrTelegramUserAlreadyLinked)

	got, err := s.GetWorkspaceIDForTelegramUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}
