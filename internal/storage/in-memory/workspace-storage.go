package in_memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
)

type WorkspaceStorage struct {
	mu         sync.RWMutex
	workspaces map[uuid.UUID]*usecase.Workspace
}

func NewWorkspaceStorage() *WorkspaceStorage {
	return &WorkspaceStorage{
		workspaces: make(map[uuid.UUID]*usecase.Workspace),
	}
}

func (s *WorkspaceStorage) SaveWorkspace(w *usecase.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[w.ID] = w
	return nil
}

func (s *WorkspaceStorage) GetWorkspace(id uuid.UUID) (*usecase.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[id]
	if !ok {
		return nil, model.ErrWorkspaceNotFound
	}
	return w, nil
}

func (s *WorkspaceStorage) DeleteWorkspace(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[id]; !ok {
		return model.ErrWorkspaceNotFound
	}
	delete(s.workspaces, id)
	return nil
}
