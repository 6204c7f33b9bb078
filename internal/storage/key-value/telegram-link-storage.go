package key_value

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

var ErrTelegramUserAlreadyLinked = errors.New("telegram user already linked")

type TelegramLinkStorage struct {
	rdb *redis.Client
}

func NewTelegramLinkStorage(rdb *redis.Client) *TelegramLinkStorage {
	return &TelegramLinkStorage{
		rdb: rdb,
	}
}

func (t *TelegramLinkStorage) LinkTelegramUser(ctx context.Context, telegramID int64, workspaceID uuid.UUID) error {
	key := getTelegramUserKey(telegramID)
	ok, err := t.rdb.SetNX(ctx, key, workspaceID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to link telegram user %d: %w", telegramID, err)
	}
	if !ok {
		return ErrTelegramUserAlreadyLinked
	}
	return nil
}

func (t *TelegramLinkStorage) GetWorkspaceIDForTelegramUser(ctx context.Context, telegramID int64) (uuid.UUID, error) {
	key := getTelegramUserKey(telegramID)
	idStr, err := t.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, model.ErrTelegramUserNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get telegram user %s: %w", key, err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse workspace id %s: %w", idStr, err)
	}
	return id, nil
}

func getTelegramUserKey(id int64) string {
	return fmt.Sprintf("telegram_%d", id)
}
