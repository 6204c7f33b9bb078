package miniapp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionFromCode(t *testing.T) {
	cases := map[int]Condition{
		0: ConditionClear, 2: ConditionPartlyCloudy, 3: ConditionCloudy, 48: ConditionFog,
		53: ConditionDrizzle, 65: ConditionRain, 75: ConditionSnow, 86: ConditionSnow,
		81: ConditionShowers, 95: ConditionThunderstorm, 42: ConditionUnknown,
	}
	for code, want := range cases {
		assert.Equalf(t, want, ConditionFromCode(code), "code %d", code)
		assert.NotEmpty(t, want.Label())
		assert.NotEmpty(t, want.Icon())
	}
}

func TestForecastGeocodesCity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "Amman" {
			fmt.Fprint(w, `{}`)
			return
		}
		fmt.Fprint(w, `{"results":[{"name":"عمّان","country":"الأردن","latitude":31.95,"longitude":35.91,"timezone":"Asia/Amman"}]}`)
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "31.9500", r.URL.Query().Get("latitude"))
		fmt.Fprint(w, `{"timezone":"Asia/Amman",
			"current":{"time":"2026-10-16T12:00","temperature_2m":27.5,"apparent_temperature":28,"relative_humidity_2m":40,"wind_speed_10m":11,"weather_code":1,"is_day":1},
			"hourly":{"time":["2026-10-16T12:00","2026-10-16T13:00"],"temperature_2m":[27.5,28.1],"weather_code":[1,61]},
			"daily":{"time":["2026-10-16"],"weather_code":[95],"temperature_2m_max":[30],"temperature_2m_min":[18],"sunrise":["2026-10-16T06:12"],"sunset":["2026-10-16T17:40"]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	w := NewWeatherClient(srv.URL+"/v1", srv.URL+"/v1", srv.Client(), nil)

	forecast, err := w.Forecast(context.Background(), Location{City: "Amman", Country: "Jordan"})

	require.NoError(t, err)
	assert.Equal(t, "عمّان", forecast.Place.Name)
	assert.Equal(t, ConditionPartlyCloudy, forecast.Current.Condition)
	assert.True(t, forecast.Current.IsDay)
	require.Len(t, forecast.Hourly, 2)
	assert.Equal(t, ConditionRain, forecast.Hourly[1].Condition)
	require.Len(t, forecast.Daily, 1)
	assert.Equal(t, ConditionThunderstorm, forecast.Daily[0].Condition)
	assert.Equal(t, "2026-10-16T17:40", forecast.Daily[0].Sunset)
}

func TestGeocodeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()
	w := NewWeatherClient(srv.URL, srv.URL, srv.Client(), nil)

	_, err := w.Geocode(context.Background(), "لا مكان")

	require.ErrorIs(t, err, ErrPlaceNotFound)
}
