package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/config"
	"github.com/iamvkosarev/persona-chat/internal/model"
)

var ErrUserNoAccess = errors.New("telegram user has no access")

type TelegramLinkStorage interface {
	LinkTelegramUser(ctx context.Context, telegramID int64, workspaceID uuid.UUID) error
	GetWorkspaceIDForTelegramUser(ctx context.Context, telegramID int64) (uuid.UUID, error)
}

type UserUsecaseDeps struct {
	TelegramLinkStorage TelegramLinkStorage
	Workspaces          *WorkspaceUsecase
}

// UserUsecase gives every telegram user one workspace of their own.
type UserUsecase struct {
	UserUsecaseDeps
	allowedUsers map[int64]struct{}
}

func NewUserUsecase(deps UserUsecaseDeps, telegramCfg config.Telegram) *UserUsecase {
	allowedUsers := make(map[int64]struct{}, len(telegramCfg.AllowedTelegramID))
	for _, id := range telegramCfg.AllowedTelegramID {
		allowedUsers[id] = struct{}{}
	}
	return &UserUsecase{
		UserUsecaseDeps: deps,
		allowedUsers:    allowedUsers,
	}
}

func (u *UserUsecase) HasAccess(telegramID int64) bool {
	if len(u.allowedUsers) == 0 {
		return true
	}
	_, ok := u.allowedUsers[telegramID]
	return ok
}

// GetWorkspaceForTelegramUser returns the user's workspace, linking a new one on first contact.
func (u *UserUsecase) GetWorkspaceForTelegramUser(ctx context.Context, telegramID int64) (*Workspace, error) {
	if !u.HasAccess(telegramID) {
		return nil, ErrUserNoAccess
	}
	workspaceID, err := u.TelegramLinkStorage.GetWorkspaceIDForTelegramUser(ctx, telegramID)
	switch {
	case err == nil:
		return u.Workspaces.GetOrCreateWorkspace(workspaceID)
	case !errors.Is(err, model.ErrTelegramUserNotFound):
		return nil, fmt.Errorf("failed to get workspace for telegram user %d: %w", telegramID, err)
	}

	workspaceID = uuid.New()
	if err = u.TelegramLinkStorage.LinkTelegramUser(ctx, telegramID, workspaceID); err != nil {
		// Lost a race with a concurrent update of the same user.
		if workspaceID, err = u.TelegramLinkStorage.GetWorkspaceIDForTelegramUser(ctx, telegramID); err != nil {
			return nil, fmt.Errorf("failed to link telegram user %d: %w", telegramID, err)
		}
	}
	return u.Workspaces.GetOrCreateWorkspace(workspaceID)
}
