package miniapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultGeocodingBaseURL = "https://geocoding-api.open-meteo.com/v1"
	DefaultForecastBaseURL  = "https://api.open-meteo.com/v1"
)

var ErrPlaceNotFound = errors.New("place not found")

type Condition string

const (
	ConditionClear        = Condition("clear")
	ConditionPartlyCloudy = Condition("partly_cloudy")
	ConditionCloudy       = Condition("cloudy")
	ConditionFog          = Condition("fog")
	ConditionDrizzle      = Condition("drizzle")
	ConditionRain         = Condition("rain")
	ConditionSnow         = Condition("snow")
	ConditionShowers      = Condition("showers")
	ConditionThunderstorm = Condition("thunderstorm")
	ConditionUnknown      = Condition("unknown")
)

var conditionLabels = map[Condition][2]string{
	ConditionClear:        {"صافٍ", "☀️"},
	ConditionPartlyCloudy: {"غائم جزئياً", "⛅"},
	ConditionCloudy:       {"غائم", "☁️"},
	ConditionFog:          {"ضباب", "🌫️"},
	ConditionDrizzle:      {"رذاذ", "🌦️"},
	ConditionRain:         {"ممطر", "🌧️"},
	ConditionSnow:         {"ثلوج", "❄️"},
	ConditionShowers:      {"زخات مطر", "🌦️"},
	ConditionThunderstorm: {"عواصف رعدية", "⛈️"},
	ConditionUnknown:      {"غير معروف", "❔"},
}

// ConditionFromCode maps a WMO weather interpretation code.
func ConditionFromCode(code int) Condition {
	switch {
	case code == 0:
		return ConditionClear
	case code == 1 || code == 2:
		return ConditionPartlyCloudy
	case code == 3:
		return ConditionCloudy
	case code == 45 || code == 48:
		return ConditionFog
	case code >= 51 && code <= 57:
		return ConditionDrizzle
	case code >= 61 && code <= 67:
		return ConditionRain
	case code >= 71 && code <= 77, code == 85, code == 86:
		return ConditionSnow
	case code >= 80 && code <= 82:
		return ConditionShowers
	case code >= 95 && code <= 99:
		return ConditionThunderstorm
	default:
		return ConditionUnknown
	}
}

func (c Condition) Label() string {
	return conditionLabels[c][0]
}

func (c Condition) Icon() string {
	return conditionLabels[c][1]
}

type Place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

type ConditionView struct {
	Condition Condition `json:"condition"`
	Label     string    `json:"label"`
	Icon      string    `json:"icon"`
}

func newConditionView(code int) ConditionView {
	c := ConditionFromCode(code)
	return ConditionView{Condition: c, Label: c.Label(), Icon: c.Icon()}
}

type CurrentWeather struct {
	ConditionView
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	IsDay       bool    `json:"is_day"`
}

type HourlyWeather struct {
	ConditionView
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
}

type DailyWeather struct {
	ConditionView
	Date    string  `json:"date"`
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Sunrise string  `json:"sunrise"`
	Sunset  string  `json:"sunset"`
}

type Forecast struct {
	Place   Place           `json:"place"`
	Current CurrentWeather  `json:"current"`
	Hourly  []HourlyWeather `json:"hourly"`
	Daily   []DailyWeather  `json:"daily"`
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time                string  `json:"time"`
		Temperature         float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		Humidity            float64 `json:"relative_humidity_2m"`
		WindSpeed           float64 `json:"wind_speed_10m"`
		WeatherCode         int     `json:"weather_code"`
		IsDay               int     `json:"is_day"`
	} `json:"current"`
	Hourly struct {
		Time        []string  `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"hourly"`
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		Max         []float64 `json:"temperature_2m_max"`
		Min         []float64 `json:"temperature_2m_min"`
		Sunrise     []string  `json:"sunrise"`
		Sunset      []string  `json:"sunset"`
	} `json:"daily"`
}

type WeatherClient struct {
	geocodingURL string
	forecastURL  string
	fetch        fetcher
}

func NewWeatherClient(geocodingURL, forecastURL string, client *http.Client, cache Cache) *WeatherClient {
	if geocodingURL == "" {
		geocodingURL = DefaultGeocodingBaseURL
	}
	if forecastURL == "" {
		forecastURL = DefaultForecastBaseURL
	}
	return &WeatherClient{
		geocodingURL: strings.TrimRight(geocodingURL, "/"),
		forecastURL:  strings.TrimRight(forecastURL, "/"),
		fetch:        newFetcher(client, cache),
	}
}

func (w *WeatherClient) Geocode(ctx context.Context, name string) (Place, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Place{}, ErrLocationRequired
	}
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("language", "ar")
	var res struct {
		Results []Place `json:"results"`
	}
	if err := w.fetch.getJSON(ctx, w.geocodingURL+"/search?"+q.Encode(), true, &res); err != nil {
		return Place{}, fmt.Errorf("failed to geocode %s: %w", name, err)
	}
	if len(res.Results) == 0 {
		return Place{}, fmt.Errorf("%w: %s", ErrPlaceNotFound, name)
	}
	return res.Results[0], nil
}

// Forecast resolves the location, geocoding "city, country" when no coordinates are given.
func (w *WeatherClient) Forecast(ctx context.Context, loc Location) (Forecast, error) {
	if err := loc.Validate(); err != nil {
		return Forecast{}, err
	}
	var place Place
	if loc.hasCoordinates() {
		place = Place{Latitude: *loc.Latitude, Longitude: *loc.Longitude}
	} else {
		var err error
		if place, err = w.Geocode(ctx, strings.TrimSpace(loc.City)+", "+strings.TrimSpace(loc.Country)); err != nil {
			if !errors.Is(err, ErrPlaceNotFound) {
				return Forecast{}, err
			}
			if place, err = w.Geocode(ctx, loc.City); err != nil {
				return Forecast{}, err
			}
		}
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(place.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(place.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m,is_day")
	q.Set("hourly", "temperature_2m,weather_code")
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,sunrise,sunset")
	q.Set("timezone", "auto")
	q.Set("forecast_days", "7")
	var res forecastResponse
	if err := w.fetch.getJSON(ctx, w.forecastURL+"/forecast?"+q.Encode(), false, &res); err != nil {
		return Forecast{}, fmt.Errorf("failed to get forecast: %w", err)
	}
	if place.Timezone == "" {
		place.Timezone = res.Timezone
	}
	return res.toForecast(place), nil
}

func (r forecastResponse) toForecast(place Place) Forecast {
	f := Forecast{
		Place: place,
		Current: CurrentWeather{
			ConditionView: newConditionView(r.Current.WeatherCode),
			Time:          r.Current.Time,
			Temperature:   r.Current.Temperature,
			FeelsLike:     r.Current.ApparentTemperature,
			Humidity:      r.Current.Humidity,
			WindSpeed:     r.Current.WindSpeed,
			IsDay:         r.Current.IsDay == 1,
		},
	}
	for i, t := range r.Hourly.Time {
		if i >= len(r.Hourly.Temperature) || i >= len(r.Hourly.WeatherCode) {
			break
		}
		f.Hourly = append(f.Hourly, HourlyWeather{
			ConditionView: newConditionView(r.Hourly.WeatherCode[i]),
			Time:          t,
			Temperature:   r.Hourly.Temperature[i],
		})
	}
	for i, d := range r.Daily.Time {
		if i >= len(r.Daily.WeatherCode) || i >= len(r.Daily.Max) || i >= len(r.Daily.Min) {
			break
		}
		day := DailyWeather{
			ConditionView: newConditionView(r.Daily.WeatherCode[i]),
			Date:          d,
			Max:           r.Daily.Max[i],
			Min:           r.Daily.Min[i],
		}
		if i < len(r.Daily.Sunrise) {
			day.Sunrise = r.Daily.Sunrise[i]
		}
		if i < len(r.Daily.Sunset) {
			day.Sunset = r.Daily.Sunset[i]
		}
		f.Daily = append(f.Daily, day)
	}
	return f
}
