package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iamvkosarev/persona-chat/internal/miniapp"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
	"github.com/iamvkosarev/persona-chat/pkg/local"
)

type timingsResponse struct {
	miniapp.DayTimings
	Next *nextPrayer `json:"next,omitempty"`
}

type nextPrayer struct {
	Prayer model.Prayer `json:"prayer"`
	At     time.Time    `json:"at"`
}

type gradesRequest struct {
	Courses []miniapp.Course `json:"courses"`
}

// locationError carries the manual-entry hint shown when no location is usable.
type locationError struct {
	Error string `json:"error"`
	Hint  string `json:"hint"`
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
	}
	return n, nil
}

func queryLocation(r *http.Request) (miniapp.Location, error) {
	q := r.URL.Query()
	loc := miniapp.Location{City: q.Get("city"), Country: q.Get("country")}
	lat, lon := q.Get("lat"), q.Get("lon")
	if lat == "" && lon == "" {
		return loc, nil
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return loc, fmt.Errorf("%w: invalid lat", errBadRequest)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return loc, fmt.Errorf("%w: invalid lon", errBadRequest)
	}
	loc.Latitude, loc.Longitude = &latitude, &longitude
	return loc, nil
}

func writeLocationError(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusBadRequest {
		writeJSON(w, http.StatusBadRequest, locationError{
			Error: err.Error(),
			Hint:  local.TextLocationUnavailable.Format(local.ParseLanguage(r.Header.Get("Accept-Language"))),
		})
		return
	}
	writeError(w, r, err)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("ws"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid workspace id", errBadRequest))
		return
	}
	prefs, err := s.Preferences.GetPreferences(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("ws"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid workspace id", errBadRequest))
		return
	}
	var prefs model.Preferences
	if err = decodeJSON(w, r, &prefs); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.Preferences.SavePreferences(r.Context(), id, prefs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, miniapp.Apps(r.URL.Query().Get("category")))
}

func (s *Server) handleSurahs(w http.ResponseWriter, r *http.Request) {
	surahs, err := s.Quran.Surahs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, surahs)
}

func (s *Server) handleSurah(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid surah number", errBadRequest))
		return
	}
	surah, err := s.Quran.Surah(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, surah)
}

func (s *Server) handleQuranSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := s.Quran.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	surah, err := queryInt(r, "surah", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryInt(r, "from", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reciter := r.URL.Query().Get("reciter")
	if reciter == "" {
		reciter = s.reciter
	}
	tracks, err := s.Quran.Playlist(r.Context(), surah, from, reciter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handlePrayerTimings(w http.ResponseWriter, r *http.Request) {
	loc, err := queryLocation(r)
	if err != nil {
		writeLocationError(w, r, err)
		return
	}
	now := s.now()
	day := now
	if v := r.URL.Query().Get("date"); v != "" {
		if day, err = time.Parse(time.DateOnly, v); err != nil {
			writeError(w, r, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest))
			return
		}
	}
	timings, err := s.Prayer.Timings(r.Context(), loc, day)
	if err != nil {
		writeLocationError(w, r, err)
		return
	}
	resp := timingsResponse{DayTimings: timings}
	if day.Format(time.DateOnly) == now.Format(time.DateOnly) {
		zone, err := time.LoadLocation(timings.Timezone)
		if err != nil {
			zone = time.UTC
		}
		if prayer, at, ok := miniapp.NextPrayer(timings, now.In(zone)); ok {
			resp.Next = &nextPrayer{Prayer: prayer, At: at}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrayerCalendar(w http.ResponseWriter, r *http.Request) {
	loc, err := queryLocation(r)
	if err != nil {
		writeLocationError(w, r, err)
		return
	}
	now := s.now()
	year, err := queryInt(r, "year", now.Year())
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := queryInt(r, "month", int(now.Month()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if month < 1 || month > 12 {
		writeError(w, r, fmt.Errorf("%w: month must be 1-12", errBadRequest))
		return
	}
	days, err := s.Prayer.Calendar(r.Context(), loc, year, time.Month(month))
	if err != nil {
		writeLocationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	loc, err := queryLocation(r)
	if err != nil {
		writeLocationError(w, r, err)
		return
	}
	forecast, err := s.Weather.Forecast(r.Context(), loc)
	if err != nil {
		writeLocationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *Server) handleGrades(w http.ResponseWriter, r *http.Request) {
	var req gradesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := miniapp.CalculateGrades(req.Courses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start, err := queryInt(r, "start", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind := model.SearchWeb
	if strings.EqualFold(r.URL.Query().Get("type"), string(model.SearchImage)) {
		kind = model.SearchImage
	}
	hits, err := s.Search.Search(r.Context(), r.URL.Query().Get("q"), kind, start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req usecase.SimulationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sim, err := s.Social.Simulate(r.Context(), req)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			observability.LoggerFromContext(r.Context()).Error("simulation failed", "error", err)
			writeJSON(w, statusFor(err), errorResponse{Error: local.TextSimulationFailed.Default})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}
