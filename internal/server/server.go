// Package server exposes the chat sessions and mini-apps over HTTP with SSE streams.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/iamvkosarev/persona-chat/internal/miniapp"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/render"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
)

type Quran interface {
	Surahs(ctx context.Context) ([]miniapp.Surah, error)
	Surah(ctx context.Context, number int) (miniapp.Surah, error)
	Search(ctx context.Context, query string, limit int) ([]miniapp.SearchMatch, error)
	Playlist(ctx context.Context, surah, from int, reciter string) ([]miniapp.Track, error)
}

type Prayer interface {
	Timings(ctx context.Context, loc miniapp.Location, day time.Time) (miniapp.DayTimings, error)
	Calendar(ctx context.Context, loc miniapp.Location, year int, month time.Month) ([]miniapp.DayTimings, error)
}

type Weather interface {
	Forecast(ctx context.Context, loc miniapp.Location) (miniapp.Forecast, error)
}

type Search interface {
	Search(ctx context.Context, query string, kind model.SearchType, start int) ([]model.SearchHit, error)
}

type Speech interface {
	GenerateSpeech(ctx context.Context, text, voice string) (string, error)
}

type Deps struct {
	Workspaces  *usecase.WorkspaceUsecase
	Personas    *usecase.PersonaUsecase
	Preferences *usecase.PreferencesUsecase
	Social      *usecase.SocialUsecase
	Speech      Speech
	Renderer    *render.Renderer

	Quran   Quran
	Prayer  Prayer
	Weather Weather
	Search  Search
}

type Options struct {
	RateLimit float64
	Burst     int
	// Reciter is the playlist edition when the request names none.
	Reciter string
	// Now is the clock of the prayer endpoints.
	Now func() time.Time
}

type Server struct {
	Deps
	now     func() time.Time
	reciter string
}

func New(deps Deps, opts Options) http.Handler {
	s := &Server{Deps: deps, now: opts.Now, reciter: opts.Reciter}
	if s.now == nil {
		s.now = time.Now
	}
	if s.Renderer == nil {
		s.Renderer = render.New()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /personas", s.handleListPersonas)
	mux.HandleFunc("POST /speech", s.handleSpeech)

	mux.HandleFunc("POST /workspaces", s.handleCreateWorkspace)
	mux.HandleFunc("GET /workspaces/{ws}", s.handleGetWorkspace)
	mux.HandleFunc("DELETE /workspaces/{ws}", s.handleDeleteWorkspace)
	mux.HandleFunc("PUT /workspaces/{ws}/active", s.handleSetActive)
	mux.HandleFunc("GET /workspaces/{ws}/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /workspaces/{ws}/preferences", s.handlePutPreferences)

	const session = "/workspaces/{ws}/sessions/{persona}"
	mux.HandleFunc("GET "+session, s.handleGetSession)
	mux.HandleFunc("DELETE "+session, s.handleNewChat)
	mux.HandleFunc("GET "+session+"/draft", s.handleTakeDraft)
	mux.HandleFunc("POST "+session+"/messages", s.handleSend)
	mux.HandleFunc("POST "+session+"/stop", s.handleStop)
	mux.HandleFunc("POST "+session+"/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST "+session+"/messages/{index}/edit", s.handleEdit)
	mux.HandleFunc("POST "+session+"/messages/{index}/forward", s.handleForward)
	mux.HandleFunc("GET "+session+"/messages/{index}/render", s.handleRender)
	mux.HandleFunc("POST "+session+"/plans/{message}/execute", s.handleExecutePlan)

	mux.HandleFunc("GET /apps", s.handleListApps)
	mux.HandleFunc("GET /apps/quran/surahs", s.handleSurahs)
	mux.HandleFunc("GET /apps/quran/surahs/{n}", s.handleSurah)
	mux.HandleFunc("GET /apps/quran/search", s.handleQuranSearch)
	mux.HandleFunc("GET /apps/quran/playlist", s.handlePlaylist)
	mux.HandleFunc("GET /apps/prayer/timings", s.handlePrayerTimings)
	mux.HandleFunc("GET /apps/prayer/calendar", s.handlePrayerCalendar)
	mux.HandleFunc("GET /apps/weather", s.handleWeather)
	mux.HandleFunc("POST /apps/grades", s.handleGrades)
	mux.HandleFunc("GET /apps/search", s.handleSearch)
	mux.HandleFunc("POST /apps/social/simulate", s.handleSimulate)

	middlewares := []func(http.Handler) http.Handler{withRequestID, withLogging, withRecovery, withCORS}
	if opts.RateLimit > 0 {
		middlewares = append(middlewares, newClientLimiter(opts.RateLimit, max(opts.Burst, 1)).middleware)
	}
	return chainMiddlewares(mux, middlewares...)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
