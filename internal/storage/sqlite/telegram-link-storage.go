package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

var ErrTelegramUserAlreadyLinked = errors.New("telegram user already linked")

type TelegramLinkStorage struct {
	db *sql.DB
}

func NewTelegramLinkStorage(db *sql.DB) *TelegramLinkStorage {
	return &TelegramLinkStorage{db: db}
}

func (t *TelegramLinkStorage) LinkTelegramUser(ctx context.Context, telegramID int64, workspaceID uuid.UUID) error {
	res, err := t.db.ExecContext(ctx, `
		INSERT INTO telegram_links (telegram_id, workspace_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO NOTHING`,
		telegramID, workspaceID.String(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to link telegram user %d: %w", telegramID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to link telegram user %d: %w", telegramID, err)
	}
	if n == 0 {
		return ErrTelegramUserAlreadyLinked
	}
	return nil
}

func (t *TelegramLinkStorage) GetWorkspaceIDForTelegramUser(ctx context.Context, telegramID int64) (uuid.UUID, error) {
	var idStr string
	err := t.db.QueryRowContext(ctx,
		`SELECT workspace_id FROM telegram_links WHERE telegram_id = ?`, telegramID,
	).Scan(&idStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, model.ErrTelegramUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get telegram user %d: %w", telegramID, err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse workspace id %s: %w", idStr, err)
	}
	return id, nil
}
