package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

type mapWorkspaceStorage map[uuid.UUID]*Workspace

func (m mapWorkspaceStorage) SaveWorkspace(w *Workspace) error {
	m[w.ID] = w
	return nil
}

func (m mapWorkspaceStorage) GetWorkspace(id uuid.UUID) (*Workspace, error) {
	w, ok := m[id]
	if !ok {
		return nil, model.ErrWorkspaceNotFound
	}
	return w, nil
}

func (m mapWorkspaceStorage) DeleteWorkspace(id uuid.UUID) error {
	delete(m, id)
	return nil
}

func newTestWorkspaces(t *testing.T, gw ChatGateway) *WorkspaceUsecase {
	t.Helper()
	personas, err := NewPersonaUsecase(DefaultPersonas(PersonaModels{Fast: "fast", Quality: "quality"}))
	require.NoError(t, err)
	return NewWorkspaceUsecase(WorkspaceUsecaseDeps{
		WorkspaceStorage: mapWorkspaceStorage{},
		Personas:         personas,
		Gateway:          gw,
	})
}

func TestWorkspaceSessionsAreIsolated(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"سريع"}}}
	workspaces := newTestWorkspaces(t, gw)
	w, err := workspaces.CreateWorkspace()
	require.NoError(t, err)
	assert.Equal(t, model.PersonaFast, w.Active())

	fast, err := w.Session(model.PersonaFast)
	require.NoError(t, err)
	require.NoError(t, fast.Send(context.Background(), SendRequest{Text: "مرحبا"}, Hooks{}))

	quality, err := w.Session(model.PersonaQuality)
	require.NoError(t, err)
	assert.Empty(t, quality.Messages())
	assert.Len(t, fast.Messages(), 2)

	again, err := w.Session(model.PersonaFast)
	require.NoError(t, err)
	assert.Same(t, fast, again)

	_, err = w.Session("unknown")
	require.ErrorIs(t, err, ErrPersonaNotFound)
}

func TestForwardCopiesRawTextAndSwitchesPersona(t *testing.T) {
	answer := "انظر ```json:chart\n{\"type\":\"pie\",\"labels\":[\"أ\"],\"datasets\":[{\"data\":[1]}]}\n```"
	gw := &fakeGateway{answers: [][]string{{answer}}}
	workspaces := newTestWorkspaces(t, gw)
	w, err := workspaces.CreateWorkspace()
	require.NoError(t, err)
	quality, err := w.Session(model.PersonaQuality)
	require.NoError(t, err)
	require.NoError(t, quality.Send(context.Background(), SendRequest{Text: "ارسم"}, Hooks{}))

	draft, err := w.Forward(model.PersonaQuality, 1, model.PersonaDesigner)

	require.NoError(t, err)
	assert.Equal(t, Draft{Persona: model.PersonaDesigner, Text: answer}, draft)
	assert.Equal(t, model.PersonaDesigner, w.Active())
	assert.Equal(t, answer, w.TakeDraft(model.PersonaDesigner))
	assert.Empty(t, w.TakeDraft(model.PersonaDesigner))

	_, err = w.Forward(model.PersonaQuality, 1, model.PersonaQuality)
	require.ErrorIs(t, err, ErrSamePersona)
	_, err = w.Forward(model.PersonaQuality, 7, model.PersonaFast)
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestGetOrCreateWorkspaceReusesID(t *testing.T) {
	workspaces := newTestWorkspaces(t, &fakeGateway{})
	id := uuid.New()

	first, err := workspaces.GetOrCreateWorkspace(id)
	require.NoError(t, err)
	second, err := workspaces.GetOrCreateWorkspace(id)
	require.NoError(t, err)

	assert.Same(t, first, second)
	require.NoError(t, workspaces.DeleteWorkspace(id))
	_, err = workspaces.GetWorkspace(id)
	require.ErrorIs(t, err, model.ErrWorkspaceNotFound)
}

func TestDeleteWorkspaceResetsOnlyOpenSessions(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"سريع"}}}
	workspaces := newTestWorkspaces(t, gw)
	w, err := workspaces.CreateWorkspace()
	require.NoError(t, err)
	fast, err := w.Session(model.PersonaFast)
	require.NoError(t, err)
	require.NoError(t, fast.Send(context.Background(), SendRequest{Text: "مرحبا"}, Hooks{}))

	require.NoError(t, workspaces.DeleteWorkspace(w.ID))

	assert.Empty(t, fast.Messages())
	w.mu.Lock()
	assert.Empty(t, w.sessions)
	w.mu.Unlock()
	require.ErrorIs(t, workspaces.DeleteWorkspace(w.ID), model.ErrWorkspaceNotFound)
}

type mapPreferencesStorage map[uuid.UUID]model.Preferences

func (m mapPreferencesStorage) GetPreferences(_ context.Context, id uuid.UUID) (model.Preferences, error) {
	prefs, ok := m[id]
	if !ok {
		return model.Preferences{}, model.ErrPreferencesNotFound
	}
	return prefs, nil
}

func (m mapPreferencesStorage) SavePreferences(_ context.Context, id uuid.UUID, prefs model.Preferences) error {
	m[id] = prefs
	return nil
}

func TestPreferencesDefaultsAndValidation(t *testing.T) {
	prefs := NewPreferencesUsecase(PreferencesUsecaseDeps{PreferencesStorage: mapPreferencesStorage{}})
	ctx := context.Background()
	id := uuid.New()

	got, err := prefs.GetPreferences(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPreferences(), got)

	_, err = prefs.SavePreferences(ctx, id, model.Preferences{Theme: "neon"})
	require.ErrorIs(t, err, ErrInvalidPreferences)
	_, err = prefs.SavePreferences(ctx, id, model.Preferences{FontSize: 64})
	require.ErrorIs(t, err, ErrInvalidPreferences)
	_, err = prefs.SavePreferences(ctx, id, model.Preferences{AdhanPrayers: map[model.Prayer]bool{"Witr": true}})
	require.ErrorIs(t, err, ErrInvalidPreferences)

	saved, err := prefs.SavePreferences(ctx, id, model.Preferences{Theme: model.ThemeDark, AdhanEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 16, saved.FontSize)
	assert.True(t, saved.AdhanFor(model.PrayerMaghrib))

	got, err = prefs.GetPreferences(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saved, got)
}
