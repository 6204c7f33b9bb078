package miniapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

const (
	DefaultAladhanBaseURL = "https://api.aladhan.com/v1"
	// DefaultPrayerMethod is Umm al-Qura, Makkah.
	DefaultPrayerMethod = 4
)

var ErrLocationRequired = errors.New("coordinates or city and country are required")

// Location is either a coordinate pair or a city/country pair.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
}

func (l Location) hasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

func (l Location) Validate() error {
	if l.hasCoordinates() || (strings.TrimSpace(l.City) != "" && strings.TrimSpace(l.Country) != "") {
		return nil
	}
	return ErrLocationRequired
}

type CalendarDate struct {
	Date      string `json:"date"`
	Day       int    `json:"day"`
	Weekday   string `json:"weekday"`
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
	Year      int    `json:"year"`
}

type DayTimings struct {
	Timings   map[model.Prayer]string `json:"timings"`
	Gregorian CalendarDate            `json:"gregorian"`
	Hijri     CalendarDate            `json:"hijri"`
	Timezone  string                  `json:"timezone"`
}

type aladhanDate struct {
	Date    string `json:"date"`
	Day     string `json:"day"`
	Weekday struct {
		En string `json:"en"`
		Ar string `json:"ar"`
	} `json:"weekday"`
	Month struct {
		Number int    `json:"number"`
		En     string `json:"en"`
		Ar     string `json:"ar"`
	} `json:"month"`
	Year string `json:"year"`
}

type aladhanDay struct {
	Timings map[string]string `json:"timings"`
	Date    struct {
		Gregorian aladhanDate `json:"gregorian"`
		Hijri     aladhanDate `json:"hijri"`
	} `json:"date"`
	Meta struct {
		Timezone string `json:"timezone"`
	} `json:"meta"`
}

type PrayerClient struct {
	baseURL string
	method  int
	fetch   fetcher
}

func NewPrayerClient(baseURL string, method int, client *http.Client, cache Cache) *PrayerClient {
	if baseURL == "" {
		baseURL = DefaultAladhanBaseURL
	}
	if method <= 0 {
		method = DefaultPrayerMethod
	}
	return &PrayerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		method:  method,
		fetch:   newFetcher(client, cache),
	}
}

// Timings returns the prayer timings and both calendars for one day.
func (p *PrayerClient) Timings(ctx context.Context, loc Location, day time.Time) (DayTimings, error) {
	if err := loc.Validate(); err != nil {
		return DayTimings{}, err
	}
	path := "/timingsByCity/"
	if loc.hasCoordinates() {
		path = "/timings/"
	}
	endpoint := p.baseURL + path + day.Format("02-01-2006") + "?" + p.query(loc).Encode()
	var res struct {
		Data aladhanDay `json:"data"`
	}
	if err := p.fetch.getJSON(ctx, endpoint, true, &res); err != nil {
		return DayTimings{}, fmt.Errorf("failed to get prayer timings: %w", err)
	}
	return res.Data.toDayTimings(), nil
}

// Calendar returns every day of a Gregorian month.
func (p *PrayerClient) Calendar(ctx context.Context, loc Location, year int, month time.Month) ([]DayTimings, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	path := "/calendarByCity/"
	if loc.hasCoordinates() {
		path = "/calendar/"
	}
	endpoint := fmt.Sprintf("%s%s%d/%d?%s", p.baseURL, path, year, int(month), p.query(loc).Encode())
	var res struct {
		Data []aladhanDay `json:"data"`
	}
	if err := p.fetch.getJSON(ctx, endpoint, true, &res); err != nil {
		return nil, fmt.Errorf("failed to get prayer calendar: %w", err)
	}
	days := make([]DayTimings, len(res.Data))
	for i, d := range res.Data {
		days[i] = d.toDayTimings()
	}
	return days, nil
}

func (p *PrayerClient) query(loc Location) url.Values {
	q := url.Values{}
	q.Set("method", strconv.Itoa(p.method))
	if loc.hasCoordinates() {
		q.Set("latitude", strconv.FormatFloat(*loc.Latitude, 'f', 4, 64))
		q.Set("longitude", strconv.FormatFloat(*loc.Longitude, 'f', 4, 64))
		return q
	}
	q.Set("city", strings.TrimSpace(loc.City))
	q.Set("country", strings.TrimSpace(loc.Country))
	return q
}

func (d aladhanDay) toDayTimings() DayTimings {
	timings := make(map[model.Prayer]string, len(model.Prayers))
	for _, prayer := range model.Prayers {
		if v, ok := d.Timings[string(prayer)]; ok {
			// Values may carry a zone suffix such as "05:01 (EET)".
			timings[prayer] = strings.Fields(v + " ")[0]
		}
	}
	return DayTimings{
		Timings:   timings,
		Gregorian: d.Date.Gregorian.toCalendarDate(false),
		Hijri:     d.Date.Hijri.toCalendarDate(true),
		Timezone:  d.Meta.Timezone,
	}
}

func (d aladhanDate) toCalendarDate(arabic bool) CalendarDate {
	day, _ := strconv.Atoi(d.Day)
	year, _ := strconv.Atoi(d.Year)
	c := CalendarDate{
		Date:      d.Date,
		Day:       day,
		Weekday:   d.Weekday.En,
		Month:     d.Month.Number,
		MonthName: d.Month.En,
		Year:      year,
	}
	if arabic {
		if d.Weekday.Ar != "" {
			c.Weekday = d.Weekday.Ar
		}
		if d.Month.Ar != "" {
			c.MonthName = d.Month.Ar
		}
	}
	return c
}

// NextPrayer is the first obligatory prayer after now on day, or tomorrow's
// Fajr once Isha has passed. Timings are read in now's location.
func NextPrayer(day DayTimings, now time.Time) (model.Prayer, time.Time, bool) {
	for _, prayer := range model.Prayers {
		if prayer == model.PrayerSunrise {
			continue
		}
		at, ok := clockOn(now, day.Timings[prayer])
		if ok && at.After(now) {
			return prayer, at, true
		}
	}
	at, ok := clockOn(now.AddDate(0, 0, 1), day.Timings[model.PrayerFajr])
	if !ok {
		return "", time.Time{}, false
	}
	return model.PrayerFajr, at, true
}

func clockOn(day time.Time, hhmm string) (time.Time, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), true
}
