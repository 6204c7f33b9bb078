package usecase

import (
	"context"
	"sync"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/config"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/pkg/local"
)

type fakeBot struct {
	mu      sync.Mutex
	nextID  int
	sent    []string
	edits   []string
	markups []any
}

func (b *fakeBot) Send(c api.Chattable) (api.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch v := c.(type) {
	case api.MessageConfig:
		b.sent = append(b.sent, v.Text)
		b.markups = append(b.markups, v.ReplyMarkup)
	case api.EditMessageTextConfig:
		b.edits = append(b.edits, v.Text)
	}
	b.nextID++
	return api.Message{MessageID: b.nextID}, nil
}

func (b *fakeBot) Request(api.Chattable) (*api.APIResponse, error) {
	return &api.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(api.UpdateConfig) api.UpdatesChannel {
	return make(chan api.Update)
}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

// final is the text the answer message shows after the last edit.
func (b *fakeBot) final() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.edits) > 0 {
		return b.edits[len(b.edits)-1]
	}
	return b.sent[len(b.sent)-1]
}

type mapLinkStorage map[int64]uuid.UUID

func (m mapLinkStorage) LinkTelegramUser(_ context.Context, telegramID int64, workspaceID uuid.UUID) error {
	m[telegramID] = workspaceID
	return nil
}

func (m mapLinkStorage) GetWorkspaceIDForTelegramUser(_ context.Context, telegramID int64) (uuid.UUID, error) {
	id, ok := m[telegramID]
	if !ok {
		return uuid.Nil, model.ErrTelegramUserNotFound
	}
	return id, nil
}

func newTestTelegram(t *testing.T, gw ChatGateway, allowed ...int64) (*TelegramUsecase, *fakeBot, *UserUsecase) {
	t.Helper()
	workspaces := newTestWorkspaces(t, gw)
	users := NewUserUsecase(
		UserUsecaseDeps{TelegramLinkStorage: mapLinkStorage{}, Workspaces: workspaces},
		config.Telegram{AllowedTelegramID: allowed},
	)
	bot := &fakeBot{}
	tg, err := NewTelegramUsecase(config.Telegram{EditInterval: 1}, TelegramUsecaseDeps{
		User:     users,
		Personas: workspaces.Personas,
		Bot:      bot,
	})
	require.NoError(t, err)
	return tg, bot, users
}

func TestUserWorkspaceIsLinkedOnce(t *testing.T) {
	_, _, users := newTestTelegram(t, &fakeGateway{})
	ctx := context.Background()

	first, err := users.GetWorkspaceForTelegramUser(ctx, 42)
	require.NoError(t, err)
	second, err := users.GetWorkspaceForTelegramUser(ctx, 42)
	require.NoError(t, err)
	other, err := users.GetWorkspaceForTelegramUser(ctx, 7)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestTelegramRejectsUsersOutsideAllowList(t *testing.T) {
	tg, bot, _ := newTestTelegram(t, &fakeGateway{}, 1)

	err := tg.handleText(context.Background(), 2, "مرحبا")

	require.ErrorIs(t, err, ErrUserNoAccess)
	assert.Equal(t, []string{local.TextTelegramNoAccess.Default}, bot.texts())
}

func TestTelegramStreamsAnswerIntoOneMessage(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"أهلاً ", "بك"}}}
	tg, bot, users := newTestTelegram(t, gw)

	require.NoError(t, tg.handleText(context.Background(), 5, "مرحبا"))

	require.Len(t, bot.texts(), 1)
	assert.Equal(t, "أهلاً بك", bot.final())

	ws, err := users.GetWorkspaceForTelegramUser(context.Background(), 5)
	require.NoError(t, err)
	session, err := ws.Session(model.PersonaFast)
	require.NoError(t, err)
	assert.Len(t, session.Messages(), 2)
}

func TestTelegramPersonaCommandAndCallback(t *testing.T) {
	tg, bot, users := newTestTelegram(t, &fakeGateway{})
	ctx := context.Background()

	require.NoError(t, tg.handleCommand(ctx, 9, CommandPersona))
	require.NoError(t, tg.handleCallback(ctx, 9, callbackPersona+string(model.PersonaDesigner)))

	sent := bot.texts()
	require.Len(t, sent, 2)
	assert.Equal(t, local.TextTelegramSelectPersona.Default, sent[0])
	markup, ok := bot.markups[0].(api.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, markup.InlineKeyboard, 3)
	assert.Equal(t, local.TextTelegramPersonaSelected.DefaultFormat("المصمم"), sent[1])

	ws, err := users.GetWorkspaceForTelegramUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, model.PersonaDesigner, ws.Active())
}

func TestTelegramResearchPlanIsExecutedFromCallback(t *testing.T) {
	gw := &fakeGateway{structuredOK: true, plan: []string{"س", "ص"}, answers: [][]string{{"التقرير"}}}
	tg, bot, users := newTestTelegram(t, gw)
	ctx := context.Background()
	require.NoError(t, tg.handleCallback(ctx, 3, callbackPersona+string(model.PersonaResearcher)))

	require.NoError(t, tg.handleText(ctx, 3, "ابحث عن الطاقة"))

	ws, err := users.GetWorkspaceForTelegramUser(ctx, 3)
	require.NoError(t, err)
	session, err := ws.Session(model.PersonaResearcher)
	require.NoError(t, err)
	plan := session.Messages()[1]
	require.True(t, plan.IsPlan())
	sent := bot.texts()
	assert.Equal(t, local.TextTelegramExecutePlan.Default+" ⬇️", sent[len(sent)-1])

	require.NoError(t, tg.handleCallback(ctx, 3, callbackPlan+string(model.PersonaResearcher)+":"+plan.ID))

	messages := session.Messages()
	require.Len(t, messages, 3)
	assert.True(t, messages[1].IsPlanExecuted)
	assert.Equal(t, "التقرير", messages[2].Content)

	err = tg.handleCallback(ctx, 3, callbackPlan+string(model.PersonaResearcher)+":"+plan.ID)
	require.ErrorIs(t, err, ErrPlanAlreadyExecuted)
	sent = bot.texts()
	assert.Equal(t, local.TextTelegramPlanDone.Default, sent[len(sent)-1])
}

func TestTelegramNewCommandClearsActiveSession(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"نعم"}}}
	tg, bot, users := newTestTelegram(t, gw)
	ctx := context.Background()
	require.NoError(t, tg.handleText(ctx, 4, "سؤال"))

	require.NoError(t, tg.handleCommand(ctx, 4, CommandNew))

	ws, err := users.GetWorkspaceForTelegramUser(ctx, 4)
	require.NoError(t, err)
	session, err := ws.Session(model.PersonaFast)
	require.NoError(t, err)
	assert.Empty(t, session.Messages())
	sent := bot.texts()
	assert.Equal(t, local.TextTelegramNewChat.DefaultFormat("المساعد السريع"), sent[len(sent)-1])
}
