package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

type preferencesInternal struct {
	Theme             string          `json:"theme"`
	FontSize          int             `json:"font_size"`
	Voice             string          `json:"voice"`
	AdhanEnabled      bool            `json:"adhan_enabled"`
	AdhanPrayers      map[string]bool `json:"adhan_prayers"`
	AdhanSoundURL     string          `json:"adhan_sound_url"`
	MicrophoneGranted bool            `json:"microphone_granted"`
}

type PreferencesStorage struct {
	rdb *redis.Client
}

func NewPreferencesStorage(rdb *redis.Client) *PreferencesStorage {
	return &PreferencesStorage{
		rdb: rdb,
	}
}

func (p *PreferencesStorage) GetPreferences(ctx context.Context, workspaceID uuid.UUID) (model.Preferences, error) {
	key := getPreferencesKey(workspaceID)
	raw, err := p.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Preferences{}, model.ErrPreferencesNotFound
		}
		return model.Preferences{}, fmt.Errorf("failed to get preferences %s: %w", workspaceID, err)
	}
	var prefsInt preferencesInternal
	if err = json.Unmarshal([]byte(raw), &prefsInt); err != nil {
		return model.Preferences{}, fmt.Errorf("failed to unmarshal preferences %s: %w", workspaceID, err)
	}
	return fromPreferencesInternal(prefsInt), nil
}

func (p *PreferencesStorage) SavePreferences(ctx context.Context, workspaceID uuid.UUID, prefs model.Preferences) error {
	prefsJSON, err := json.Marshal(toPreferencesInternal(prefs))
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	key := getPreferencesKey(workspaceID)
	if err = p.rdb.Set(ctx, key, prefsJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save preferences %s: %w", key, err)
	}
	return nil
}

func toPreferencesInternal(prefs model.Preferences) preferencesInternal {
	prayers := make(map[string]bool, len(prefs.AdhanPrayers))
	for prayer, on := range prefs.AdhanPrayers {
		prayers[string(prayer)] = on
	}
	return preferencesInternal{
		Theme:             string(prefs.Theme),
		FontSize:          prefs.FontSize,
		Voice:             prefs.Voice,
		AdhanEnabled:      prefs.AdhanEnabled,
		AdhanPrayers:      prayers,
		AdhanSoundURL:     prefs.AdhanSoundURL,
		MicrophoneGranted: prefs.MicrophoneGranted,
	}
}

func fromPreferencesInternal(prefsInt preferencesInternal) model.Preferences {
	prayers := make(map[model.Prayer]bool, len(prefsInt.AdhanPrayers))
	for prayer, on := range prefsInt.AdhanPrayers {
		prayers[model.Prayer(prayer)] = on
	}
	return model.Preferences{
		Theme:             model.Theme(prefsInt.Theme),
		FontSize:          prefsInt.FontSize,
		Voice:             prefsInt.Voice,
		AdhanEnabled:      prefsInt.AdhanEnabled,
		AdhanPrayers:      prayers,
		AdhanSoundURL:     prefsInt.AdhanSoundURL,
		MicrophoneGranted: prefsInt.MicrophoneGranted,
	}
}

func getPreferencesKey(id uuid.UUID) string {
	return fmt.Sprintf("preferences_%s", id.String())
}
