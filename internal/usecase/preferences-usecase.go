package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

const (
	minFontSize = 12
	maxFontSize = 28
)

var ErrInvalidPreferences = errors.New("invalid preferences")

type PreferencesStorage interface {
	GetPreferences(ctx context.Context, workspaceID uuid.UUID) (model.Preferences, error)
	SavePreferences(ctx context.Context, workspaceID uuid.UUID, prefs model.Preferences) error
}

type PreferencesUsecaseDeps struct {
	PreferencesStorage PreferencesStorage
}

type PreferencesUsecase struct {
	PreferencesUsecaseDeps
}

func NewPreferencesUsecase(deps PreferencesUsecaseDeps) *PreferencesUsecase {
	return &PreferencesUsecase{PreferencesUsecaseDeps: deps}
}

// GetPreferences falls back to defaults for a workspace that never saved any.
func (u *PreferencesUsecase) GetPreferences(ctx context.Context, workspaceID uuid.UUID) (model.Preferences, error) {
	prefs, err := u.PreferencesStorage.GetPreferences(ctx, workspaceID)
	if errors.Is(err, model.ErrPreferencesNotFound) {
		return model.DefaultPreferences(), nil
	}
	if err != nil {
		return model.Preferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}
	return prefs, nil
}

func (u *PreferencesUsecase) SavePreferences(ctx context.Context, workspaceID uuid.UUID, prefs model.Preferences) (model.Preferences, error) {
	switch prefs.Theme {
	case model.ThemeLight, model.ThemeDark:
	case "":
		prefs.Theme = model.ThemeLight
	default:
		return model.Preferences{}, fmt.Errorf("%w: theme %q", ErrInvalidPreferences, prefs.Theme)
	}
	if prefs.FontSize == 0 {
		prefs.FontSize = model.DefaultPreferences().FontSize
	}
	if prefs.FontSize < minFontSize || prefs.FontSize > maxFontSize {
		return model.Preferences{}, fmt.Errorf("%w: font size %d", ErrInvalidPreferences, prefs.FontSize)
	}
	if prefs.AdhanPrayers == nil {
		prefs.AdhanPrayers = model.DefaultPreferences().AdhanPrayers
	}
	for prayer := range prefs.AdhanPrayers {
		if !isPrayer(prayer) {
			return model.Preferences{}, fmt.Errorf("%w: prayer %q", ErrInvalidPreferences, prayer)
		}
	}
	if err := u.PreferencesStorage.SavePreferences(ctx, workspaceID, prefs); err != nil {
		return model.Preferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	return prefs, nil
}

func isPrayer(p model.Prayer) bool {
	for _, prayer := range model.Prayers {
		if prayer == p {
			return true
		}
	}
	return false
}
