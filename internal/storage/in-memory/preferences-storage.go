package in_memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

type PreferencesStorage struct {
	mu    sync.RWMutex
	prefs map[uuid.UUID]model.Preferences
}

func NewPreferencesStorage() *PreferencesStorage {
	return &PreferencesStorage{
		prefs: make(map[uuid.UUID]model.Preferences),
	}
}

func (s *PreferencesStorage) GetPreferences(_ context.Context, workspaceID uuid.UUID) (model.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefs, ok := s.prefs[workspaceID]
	if !ok {
		return model.Preferences{}, model.ErrPreferencesNotFound
	}
	prefs.AdhanPrayers = maps.Clone(prefs.AdhanPrayers)
	return prefs, nil
}

func (s *PreferencesStorage) SavePreferences(_ context.Context, workspaceID uuid.UUID, prefs model.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs.AdhanPrayers = maps.Clone(prefs.AdhanPrayers)
	s.prefs[workspaceID] = prefs
	return nil
}
