package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

type PreferencesStorage struct {
	db *sql.DB
}

func NewPreferencesStorage(db *sql.DB) *PreferencesStorage {
	return &PreferencesStorage{db: db}
}

func (p *PreferencesStorage) GetPreferences(ctx context.Context, workspaceID uuid.UUID) (model.Preferences, error) {
	var (
		prefs        model.Preferences
		theme        string
		prayersJSON  string
		adhanEnabled int
		micGranted   int
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT theme, font_size, voice, adhan_enabled, adhan_prayers_json, adhan_sound_url, microphone_granted
		FROM preferences WHERE workspace_id = ?`, workspaceID.String(),
	).Scan(&theme, &prefs.FontSize, &prefs.Voice, &adhanEnabled, &prayersJSON, &prefs.AdhanSoundURL, &micGranted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Preferences{}, model.ErrPreferencesNotFound
		}
		return model.Preferences{}, fmt.Errorf("failed to get preferences %s: %w", workspaceID, err)
	}
	if err = json.Unmarshal([]byte(prayersJSON), &prefs.AdhanPrayers); err != nil {
		return model.Preferences{}, fmt.Errorf("failed to unmarshal adhan prayers %s: %w", workspaceID, err)
	}
	prefs.Theme = model.Theme(theme)
	prefs.AdhanEnabled = adhanEnabled != 0
	prefs.MicrophoneGranted = micGranted != 0
	return prefs, nil
}

func (p *PreferencesStorage) SavePreferences(ctx context.Context, workspaceID uuid.UUID, prefs model.Preferences) error {
	prayersJSON, err := json.Marshal(prefs.AdhanPrayers)
	if err != nil {
		return fmt.Errorf("failed to marshal adhan prayers: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO preferences (
		  workspace_id, theme, font_size, voice, adhan_enabled, adhan_prayers_json,
		  adhan_sound_url, microphone_granted, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
		  theme = excluded.theme,
		  font_size = excluded.font_size,
		  voice = excluded.voice,
		  adhan_enabled = excluded.adhan_enabled,
		  adhan_prayers_json = excluded.adhan_prayers_json,
		  adhan_sound_url = excluded.adhan_sound_url,
		  microphone_granted = excluded.microphone_granted,
		  updated_at = excluded.updated_at`,
		workspaceID.String(), string(prefs.Theme), prefs.FontSize, prefs.Voice, boolToInt(prefs.AdhanEnabled),
		string(prayersJSON), prefs.AdhanSoundURL, boolToInt(prefs.MicrophoneGranted), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences %s: %w", workspaceID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
