package model

type Theme string

const (
	ThemeLight = Theme("light")
	ThemeDark  = Theme("dark")
)

type Prayer string

const (
	PrayerFajr    = Prayer("Fajr")
	PrayerSunrise = Prayer("Sunrise")
	PrayerDhuhr   = Prayer("Dhuhr")
	PrayerAsr     = Prayer("Asr")
	PrayerMaghrib = Prayer("Maghrib")
	PrayerIsha    = Prayer("Isha")
)

// Prayers is the display order of the daily timings.
var Prayers = []Prayer{PrayerFajr, PrayerSunrise, PrayerDhuhr, PrayerAsr, PrayerMaghrib, PrayerIsha}

type Preferences struct {
	Theme             Theme           `json:"theme"`
	FontSize          int             `json:"font_size"`
	Voice             string          `json:"voice"`
	AdhanEnabled      bool            `json:"adhan_enabled"`
	AdhanPrayers      map[Prayer]bool `json:"adhan_prayers"`
	AdhanSoundURL     string          `json:"adhan_sound_url"`
	MicrophoneGranted bool            `json:"microphone_granted"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Theme:    ThemeLight,
		FontSize: 16,
		Voice:    "alloy",
		AdhanPrayers: map[Prayer]bool{
			PrayerFajr:    true,
			PrayerDhuhr:   true,
			PrayerAsr:     true,
			PrayerMaghrib: true,
			PrayerIsha:    true,
		},
	}
}

// AdhanFor reports whether the call to prayer should sound for p.
func (p Preferences) AdhanFor(prayer Prayer) bool {
	return p.AdhanEnabled && p.AdhanPrayers[prayer]
}
