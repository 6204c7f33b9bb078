package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/sourcegraph/conc"

	"github.com/iamvkosarev/persona-chat/config"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	"github.com/iamvkosarev/persona-chat/internal/render"
	"github.com/iamvkosarev/persona-chat/pkg/local"
)

const (
	CommandStart   = "start"
	CommandHelp    = "help"
	CommandNew     = "new"
	CommandPersona = "persona"

	callbackPersona = "persona:"
	callbackPlan    = "plan:"

	defaultEditInterval = 2500 * time.Millisecond
	maxButtonsInRow     = 2
)

// TelegramBot is the part of the bot API the front-end uses.
type TelegramBot interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetUpdatesChan(cfg api.UpdateConfig) api.UpdatesChannel
}

type TelegramUsecaseDeps struct {
	User     *UserUsecase
	Personas *PersonaUsecase
	Bot      TelegramBot
}

// TelegramUsecase drives the active persona's session of each telegram user.
type TelegramUsecase struct {
	TelegramUsecaseDeps
	editInterval time.Duration
}

func NewTelegramUsecase(cfg config.Telegram, deps TelegramUsecaseDeps) (*TelegramUsecase, error) {
	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{
					Command:     CommandHelp,
					Description: "مساعدة",
				},
				{
					Command:     CommandNew,
					Description: "محادثة جديدة",
				},
				{
					Command:     CommandPersona,
					Description: "اختيار الشخصية",
				},
			}...,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set bot commands: %w", err)
	}

	editInterval := cfg.EditInterval
	if editInterval <= 0 {
		editInterval = defaultEditInterval
	}
	return &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		editInterval:        editInterval,
	}, nil
}

// Run handles updates until ctx is done. Each update is handled on its own
// goroutine so one long answer does not block other users.
func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	wg := conc.NewWaitGroup()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			wg.Go(func() {
				t.handleUpdate(ctx, update)
			})
		}
	}
}

func (t *TelegramUsecase) handleUpdate(ctx context.Context, update api.Update) {
	log := observability.Logger()
	if update.Message != nil {
		chatID := update.Message.Chat.ID
		var err error
		if update.Message.IsCommand() {
			err = t.handleCommand(ctx, chatID, update.Message.Command())
		} else {
			err = t.handleText(ctx, chatID, update.Message.Text)
		}
		if err != nil {
			log.Error("error handling message", "chat_id", chatID, "error", err)
		}
	}
	if update.CallbackQuery != nil {
		callback := api.NewCallback(update.CallbackQuery.ID, "")
		if _, err := t.Bot.Request(callback); err != nil {
			log.Warn("failed to answer callback query", "error", err)
		}
		chatID := update.CallbackQuery.Message.Chat.ID
		if err := t.handleCallback(ctx, chatID, update.CallbackQuery.Data); err != nil {
			log.Error("error handling callback query", "chat_id", chatID, "error", err)
		}
	}
}

func (t *TelegramUsecase) workspace(ctx context.Context, chatID int64) (*Workspace, error) {
	ws, err := t.User.GetWorkspaceForTelegramUser(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrUserNoAccess) {
			t.sendMessageAndHandleErr(chatID, local.TextTelegramNoAccess.Default)
		} else {
			t.sendMessageAndHandleErr(chatID, local.TextServerError.Default)
		}
		return nil, err
	}
	return ws, nil
}

func (t *TelegramUsecase) handleCommand(ctx context.Context, chatID int64, command string) error {
	ws, err := t.workspace(ctx, chatID)
	if err != nil {
		return err
	}
	switch command {
	case CommandStart:
		t.sendMessageAndHandleErr(chatID, local.TextTelegramStart.Default)
	case CommandHelp:
		t.sendMessageAndHandleErr(chatID, local.TextTelegramHelp.Default)
	case CommandNew:
		active := ws.Active()
		if err = ws.NewChat(active); err != nil {
			t.sendMessageAndHandleErr(chatID, local.TextServerError.Default)
			return fmt.Errorf("failed to start new chat: %w", err)
		}
		persona, _ := t.Personas.Get(active)
		t.sendMessageAndHandleErr(chatID, local.TextTelegramNewChat.DefaultFormat(persona.DisplayName))
	case CommandPersona:
		return t.sendSelectPersonaKeyboard(chatID)
	default:
		t.sendMessageAndHandleErr(chatID, local.TextTelegramUnknownCommand.Default)
	}
	return nil
}

func (t *TelegramUsecase) handleCallback(ctx context.Context, chatID int64, data string) error {
	ws, err := t.workspace(ctx, chatID)
	if err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(data, callbackPersona):
		id := model.PersonaID(strings.TrimPrefix(data, callbackPersona))
		if err = ws.SetActive(id); err != nil {
			t.sendMessageAndHandleErr(chatID, local.TextServerError.Default)
			return fmt.Errorf("failed to select persona: %w", err)
		}
		persona, _ := t.Personas.Get(id)
		t.sendMessageAndHandleErr(chatID, local.TextTelegramPersonaSelected.DefaultFormat(persona.DisplayName))
		return nil
	case strings.HasPrefix(data, callbackPlan):
		personaID, planID, ok := strings.Cut(strings.TrimPrefix(data, callbackPlan), ":")
		if !ok {
			return fmt.Errorf("malformed plan callback %q", data)
		}
		session, err := ws.Session(model.PersonaID(personaID))
		if err != nil {
			return err
		}
		_, err = t.answer(ctx, chatID, func(hooks Hooks) error {
			return session.ExecutePlan(ctx, planID, nil, hooks)
		})
		return err
	default:
		return fmt.Errorf("unknown callback %q", data)
	}
}

func (t *TelegramUsecase) handleText(ctx context.Context, chatID int64, text string) error {
	ws, err := t.workspace(ctx, chatID)
	if err != nil {
		return err
	}
	session, err := ws.Session(ws.Active())
	if err != nil {
		return err
	}
	persona := session.Persona()
	answer, err := t.answer(ctx, chatID, func(hooks Hooks) error {
		return session.Send(ctx, SendRequest{
			Text:         text,
			WebSearch:    persona.Features.WebSearch,
			DeepThinking: persona.Features.DeepThinking,
		}, hooks)
	})
	if err != nil {
		return err
	}
	if answer.IsPlan() && !answer.IsPlanExecuted {
		return t.sendExecutePlanKeyboard(chatID, persona.ID, answer.ID)
	}
	return nil
}

// answer streams the assistant message produced by run into one telegram
// message, edited at most once per edit interval.
func (t *TelegramUsecase) answer(ctx context.Context, chatID int64, run func(hooks Hooks) error) (model.Message, error) {
	var (
		mu       sync.Mutex
		last     model.Message
		runErr   error
		answered bool
	)
	answerChan := make(chan string)
	throttledAnswerChan := make(chan string)
	log := observability.LoggerFromContext(ctx)

	wg := conc.NewWaitGroup()
	wg.Go(
		func() {
			defer close(answerChan)
			runErr = run(Hooks{
				OnMessage: func(m model.Message) {
					// An approved plan keeps its own telegram message.
					if m.Role != model.RoleAssistant || m.IsPlanExecuted {
						return
					}
					mu.Lock()
					last = m
					mu.Unlock()
					answerChan <- render.PlainText(m)
				},
			})
		},
	)
	wg.Go(
		func() {
			defer close(throttledAnswerChan)
			lastUpdateTime := time.Now()
			var currentAnswer string
			for answer := range answerChan {
				currentAnswer = answer
				// Telegram rate limits edits well below its documented one per second.
				if lastUpdateTime.Add(t.editInterval).Before(time.Now()) {
					throttledAnswerChan <- currentAnswer
					lastUpdateTime = time.Now()
				}
			}
			throttledAnswerChan <- currentAnswer
		},
	)
	wg.Go(
		func() {
			if _, err := t.Bot.Request(api.NewChatAction(chatID, api.ChatTyping)); err != nil {
				log.Warn("failed to send chat action", "error", err)
			}

			var answerMsgID int
			var sent string
			for currentAnswer := range throttledAnswerChan {
				if len(currentAnswer) == 0 || currentAnswer == sent {
					continue
				}
				if answerMsgID == 0 {
					answerMsg, err := t.sendMessage(chatID, currentAnswer)
					if err != nil {
						log.Error("failed to send answer", "error", err)
						continue
					}
					answerMsgID = answerMsg.MessageID
				} else if _, err := t.sendEditMessage(chatID, answerMsgID, currentAnswer); err != nil {
					log.Warn("failed to edit answer", "error", err)
					continue
				}
				sent = currentAnswer
				answered = true
			}
		},
	)
	wg.Wait()

	if runErr != nil {
		switch {
		case errors.Is(runErr, ErrSessionBusy):
			t.sendMessageAndHandleErr(chatID, local.TextTelegramBusy.Default)
		case errors.Is(runErr, ErrPlanAlreadyExecuted):
			t.sendMessageAndHandleErr(chatID, local.TextTelegramPlanDone.Default)
		case !answered:
			t.sendMessageAndHandleErr(chatID, local.TextServerError.Default)
		}
		return last, fmt.Errorf("failed to answer: %w", runErr)
	}
	return last, nil
}

func (t *TelegramUsecase) sendSelectPersonaKeyboard(chatID int64) error {
	msg := api.NewMessage(chatID, local.TextTelegramSelectPersona.Default)
	inlineRows := make([][]api.InlineKeyboardButton, 0)
	inlineButtons := make([]api.InlineKeyboardButton, 0)
	for _, persona := range t.Personas.List() {
		if len(inlineButtons) == maxButtonsInRow {
			inlineRows = append(inlineRows, inlineButtons)
			inlineButtons = make([]api.InlineKeyboardButton, 0)
		}
		inlineButtons = append(
			inlineButtons,
			api.NewInlineKeyboardButtonData(persona.DisplayName, callbackPersona+string(persona.ID)),
		)
	}
	inlineRows = append(inlineRows, inlineButtons)
	msg.ReplyMarkup = api.NewInlineKeyboardMarkup(inlineRows...)
	if _, err := t.Bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send persona keyboard: %w", err)
	}
	return nil
}

func (t *TelegramUsecase) sendExecutePlanKeyboard(chatID int64, persona model.PersonaID, planID string) error {
	msg := api.NewMessage(chatID, local.TextTelegramExecutePlan.Default+" ⬇️")
	msg.ReplyMarkup = api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(
				local.TextTelegramExecutePlan.Default,
				callbackPlan+string(persona)+":"+planID,
			),
		),
	)
	if _, err := t.Bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send plan keyboard: %w", err)
	}
	return nil
}

func (t *TelegramUsecase) sendMessageAndHandleErr(chatID int64, message string) api.Message {
	msg, err := t.sendMessage(chatID, message)
	if err != nil {
		observability.Logger().Error("failed to send message", "chat_id", chatID, "error", err)
	}
	return msg
}

func (t *TelegramUsecase) sendMessage(chatID int64, message string) (api.Message, error) {
	return t.sendToBot(api.NewMessage(chatID, message))
}

func (t *TelegramUsecase) sendEditMessage(chatID int64, previousMsgID int, message string) (api.Message, error) {
	return t.sendToBot(api.NewEditMessageText(chatID, previousMsgID, message))
}

func (t *TelegramUsecase) sendToBot(c api.Chattable) (api.Message, error) {
	return t.Bot.Send(c)
}
