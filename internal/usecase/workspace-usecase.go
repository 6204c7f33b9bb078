package usecase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

var ErrSamePersona = errors.New("message is already in this persona")

// Draft is text prefilled in a persona's input box.
type Draft struct {
	Persona model.PersonaID `json:"persona"`
	Text    string          `json:"text"`
}

// Workspace is one user's set of isolated persona sessions.
type Workspace struct {
	ID uuid.UUID

	mu       sync.Mutex
	personas *PersonaUsecase
	gateway  ChatGateway
	sessions map[model.PersonaID]*ChatSession
	active   model.PersonaID
	drafts   map[model.PersonaID]string
}

func NewWorkspace(id uuid.UUID, personas *PersonaUsecase, gw ChatGateway) *Workspace {
	return &Workspace{
		ID:       id,
		personas: personas,
		gateway:  gw,
		sessions: make(map[model.PersonaID]*ChatSession),
		active:   personas.List()[0].ID,
		drafts:   make(map[model.PersonaID]string),
	}
}

// Session returns the persona's session, creating it on first use.
func (w *Workspace) Session(id model.PersonaID) (*ChatSession, error) {
	persona, err := w.personas.Get(id)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	session, ok := w.sessions[id]
	if !ok {
		session = NewChatSession(persona, w.gateway)
		w.sessions[id] = session
	}
	return session, nil
}

func (w *Workspace) Active() model.PersonaID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *Workspace) SetActive(id model.PersonaID) error {
	if _, err := w.personas.Get(id); err != nil {
		return err
	}
	w.mu.Lock()
	w.active = id
	w.mu.Unlock()
	return nil
}

// Forward copies a message's raw text into target's draft and makes target active.
func (w *Workspace) Forward(from model.PersonaID, index int, target model.PersonaID) (Draft, error) {
	if from == target {
		return Draft{}, ErrSamePersona
	}
	if _, err := w.personas.Get(target); err != nil {
		return Draft{}, err
	}
	source, err := w.Session(from)
	if err != nil {
		return Draft{}, err
	}
	msg, err := source.Message(index)
	if err != nil {
		return Draft{}, fmt.Errorf("failed to forward message: %w", err)
	}
	draft := Draft{Persona: target, Text: msg.Text()}

	w.mu.Lock()
	w.drafts[target] = draft.Text
	w.active = target
	w.mu.Unlock()
	return draft, nil
}

// TakeDraft returns and clears the persona's pending draft.
func (w *Workspace) TakeDraft(id model.PersonaID) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	draft := w.drafts[id]
	delete(w.drafts, id)
	return draft
}

func (w *Workspace) NewChat(id model.PersonaID) error {
	session, err := w.Session(id)
	if err != nil {
		return err
	}
	session.NewChat()
	return nil
}

// Close drops every open session and its running request.
func (w *Workspace) Close() {
	w.mu.Lock()
	sessions := make([]*ChatSession, 0, len(w.sessions))
	for _, session := range w.sessions {
		sessions = append(sessions, session)
	}
	clear(w.sessions)
	clear(w.drafts)
	w.mu.Unlock()

	for _, session := range sessions {
		session.NewChat()
	}
}

type WorkspaceStorage interface {
	SaveWorkspace(w *Workspace) error
	GetWorkspace(id uuid.UUID) (*Workspace, error)
	DeleteWorkspace(id uuid.UUID) error
}

type WorkspaceUsecaseDeps struct {
	WorkspaceStorage WorkspaceStorage
	Personas         *PersonaUsecase
	Gateway          ChatGateway
}

type WorkspaceUsecase struct {
	WorkspaceUsecaseDeps
	mu sync.Mutex
}

func NewWorkspaceUsecase(deps WorkspaceUsecaseDeps) *WorkspaceUsecase {
	return &WorkspaceUsecase{WorkspaceUsecaseDeps: deps}
}

func (u *WorkspaceUsecase) CreateWorkspace() (*Workspace, error) {
	return u.GetOrCreateWorkspace(uuid.New())
}

func (u *WorkspaceUsecase) GetWorkspace(id uuid.UUID) (*Workspace, error) {
	return u.WorkspaceStorage.GetWorkspace(id)
}

// GetOrCreateWorkspace recreates a workspace under a known id, e.g. after a
// restart, since transcripts live only in memory.
func (u *WorkspaceUsecase) GetOrCreateWorkspace(id uuid.UUID) (*Workspace, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	w, err := u.WorkspaceStorage.GetWorkspace(id)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, model.ErrWorkspaceNotFound) {
		return nil, fmt.Errorf("failed to get workspace %s: %w", id, err)
	}
	w = NewWorkspace(id, u.Personas, u.Gateway)
	if err = u.WorkspaceStorage.SaveWorkspace(w); err != nil {
		return nil, fmt.Errorf("failed to save workspace %s: %w", id, err)
	}
	return w, nil
}

func (u *WorkspaceUsecase) DeleteWorkspace(id uuid.UUID) error {
	w, err := u.WorkspaceStorage.GetWorkspace(id)
	if err != nil {
		return err
	}
	w.Close()
	return u.WorkspaceStorage.DeleteWorkspace(id)
}
