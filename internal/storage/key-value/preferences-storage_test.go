package key_value

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

func TestPreferencesInternalKeepsEveryField(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.Theme = model.ThemeDark
	prefs.AdhanEnabled = true
	prefs.AdhanPrayers[model.PrayerAsr] = false
	prefs.AdhanSoundURL = "https://example.com/adhan.mp3"

	assert.Equal(t, prefs, fromPreferencesInternal(toPreferencesInternal(prefs)))
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("5f1c1a8e-8f4a-4c39-9d0e-111111111111")

	assert.Equal(t, "preferences_5f1c1a8e-8f4a-4c39-9d0e-111111111111", getPreferencesKey(id))
	assert.Equal(t, "telegram_42", getTelegramUserKey(42))
	assert.Equal(t, "cache_quran", getCacheKey("quran"))
}
