package in_memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

var ErrTelegramUserAlreadyLinked = errors.New("telegram user already linked")

// TelegramLinkStorage maps telegram users to their workspaces.
type TelegramLinkStorage struct {
	mu         sync.RWMutex
	workspaces map[int64]uuid.UUID
}

func NewTelegramLinkStorage() *TelegramLinkStorage {
	return &TelegramLinkStorage{
		workspaces: make(map[int64]uuid.UUID),
	}
}

func (s *TelegramLinkStorage) LinkTelegramUser(_ context.Context, telegramID int64, workspaceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[telegramID]; ok {
		return ErrTelegramUserAlreadyLinked
	}
	s.workspaces[telegramID] = workspaceID
	return nil
}

func (s *TelegramLinkStorage) GetWorkspaceIDForTelegramUser(_ context.Context, telegramID int64) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.workspaces[telegramID]
	if !ok {
		return uuid.Nil, model.ErrTelegramUserNotFound
	}
	return id, nil
}
