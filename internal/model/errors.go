package model

import "errors"

var (
	ErrWorkspaceNotFound    = errors.New("workspace not found")
	ErrPreferencesNotFound  = errors.New("preferences not found")
	ErrTelegramUserNotFound = errors.New("telegram user not found")
)
