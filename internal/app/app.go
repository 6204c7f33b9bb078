package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/redis/go-redis/v9"

	"github.com/iamvkosarev/persona-chat/config"
	"github.com/iamvkosarev/persona-chat/internal/gateway"
	"github.com/iamvkosarev/persona-chat/internal/miniapp"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	"github.com/iamvkosarev/persona-chat/internal/render"
	"github.com/iamvkosarev/persona-chat/internal/server"
	in_memory "github.com/iamvkosarev/persona-chat/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/persona-chat/internal/storage/key-value"
	"github.com/iamvkosarev/persona-chat/internal/storage/sqlite"
	"github.com/iamvkosarev/persona-chat/internal/usecase"
	openai_tools "github.com/iamvkosarev/persona-chat/pkg/openai-tools"
)

// App holds the wired components shared by the HTTP and telegram front-ends.
type App struct {
	cfg *config.Config

	Personas    *usecase.PersonaUsecase
	Gateway     *gateway.Gateway
	Workspaces  *usecase.WorkspaceUsecase
	Preferences *usecase.PreferencesUsecase
	Social      *usecase.SocialUsecase

	Quran   *miniapp.QuranClient
	Prayer  *miniapp.PrayerClient
	Weather *miniapp.WeatherClient
	Search  *miniapp.SearchClient

	links   usecase.TelegramLinkStorage
	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	log := observability.Logger()

	personas, err := loadPersonas(cfg)
	if err != nil {
		return nil, err
	}
	if a.Personas, err = usecase.NewPersonaUsecase(personas); err != nil {
		return nil, fmt.Errorf("failed to create persona registry: %w", err)
	}

	var (
		prefsStorage usecase.PreferencesStorage
		cache        miniapp.Cache
	)
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		rdb := redis.NewClient(
			&redis.Options{
				Addr:     cfg.Redis.Endpoint,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
		)
		if err = rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.Redis.Endpoint, err)
		}
		a.closers = append(a.closers, rdb.Close)
		prefsStorage = key_value.NewPreferencesStorage(rdb)
		a.links = key_value.NewTelegramLinkStorage(rdb)
		cache = key_value.NewCache(rdb, cfg.Storage.CacheTTL)
	case config.StorageSQLite:
		var db *sql.DB
		if db, err = sqlite.Open(cfg.Storage.SQLitePath); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		prefsStorage = sqlite.NewPreferencesStorage(db)
		a.links = sqlite.NewTelegramLinkStorage(db)
	default:
		prefsStorage = in_memory.NewPreferencesStorage()
		a.links = in_memory.NewTelegramLinkStorage()
	}
	log.Info("storage ready", "backend", cfg.Storage.Backend)

	httpClient := &http.Client{Timeout: 20 * time.Second}
	a.Quran = miniapp.NewQuranClient(cfg.Apps.QuranBaseURL, httpClient, cache)
	a.Prayer = miniapp.NewPrayerClient(cfg.Apps.AladhanBaseURL, cfg.Apps.PrayerMethod, httpClient, cache)
	a.Weather = miniapp.NewWeatherClient(cfg.Apps.GeocodingBaseURL, cfg.Apps.ForecastBaseURL, httpClient, cache)
	a.Search = miniapp.NewSearchClient(cfg.Apps.SearchBaseURL, cfg.Apps.SearchAPIKey, cfg.Apps.SearchEngineID, httpClient)

	providers, err := a.providers(ctx)
	if err != nil {
		return nil, err
	}
	a.Gateway = gateway.New(
		providers,
		gateway.WithHistoryBudget(cfg.LLM.MaxHistoryTokens),
		gateway.WithTokenCounter(openai_tools.CountToken),
	)

	a.Workspaces = usecase.NewWorkspaceUsecase(
		usecase.WorkspaceUsecaseDeps{
			WorkspaceStorage: in_memory.NewWorkspaceStorage(),
			Personas:         a.Personas,
			Gateway:          a.Gateway,
		},
	)
	a.Preferences = usecase.NewPreferencesUsecase(
		usecase.PreferencesUsecaseDeps{
			PreferencesStorage: prefsStorage,
		},
	)
	a.Social = usecase.NewSocialUsecase(
		usecase.SocialUsecaseDeps{
			Gateway:  a.Gateway,
			Personas: a.Personas,
		},
	)
	return a, nil
}

func loadPersonas(cfg *config.Config) ([]model.Persona, error) {
	if cfg.PersonasFile != "" {
		return usecase.LoadPersonas(cfg.PersonasFile)
	}
	return usecase.DefaultPersonas(
		usecase.PersonaModels{
			Fast:    cfg.LLM.FastModel,
			Quality: cfg.LLM.QualityModel,
		},
	), nil
}

// providers builds one client per API key, in rotation order.
func (a *App) providers(ctx context.Context) ([]gateway.Provider, error) {
	cfg := a.cfg.LLM
	if len(cfg.APIKeys) == 0 {
		observability.Logger().Warn("no llm api keys configured, chat requests will fail")
	}
	var searcher gateway.Searcher
	if a.Search.Configured() {
		searcher = a.Search
	}

	baseURL := cfg.BaseURL
	if baseURL != "" && !strings.HasSuffix(strings.TrimRight(baseURL, "/"), "/v1") {
		var err error
		if baseURL, err = url.JoinPath(baseURL, "/v1"); err != nil {
			return nil, fmt.Errorf("invalid llm base url %s: %w", cfg.BaseURL, err)
		}
	}

	providers := make([]gateway.Provider, 0, len(cfg.APIKeys))
	for i, key := range cfg.APIKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch cfg.Provider {
		case config.ProviderOpenAI:
			providers = append(providers, gateway.NewOpenAIProvider(
				key,
				gateway.OpenAIConfig{BaseURL: baseURL, ImageModel: cfg.ImageModel, SpeechModel: cfg.SpeechModel},
				searcher,
			))
		default:
			p, err := gateway.NewGeminiProvider(
				ctx, key,
				gateway.GeminiConfig{ImageModel: cfg.ImageModel, SpeechModel: cfg.SpeechModel},
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create gemini provider %d: %w", i, err)
			}
			providers = append(providers, p)
		}
	}
	return providers, nil
}

func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// RunServer serves the HTTP API until ctx is done.
func (a *App) RunServer(ctx context.Context) error {
	handler := server.New(
		server.Deps{
			Workspaces:  a.Workspaces,
			Personas:    a.Personas,
			Preferences: a.Preferences,
			Social:      a.Social,
			Speech:      a.Gateway,
			Renderer:    render.New(),
			Quran:       a.Quran,
			Prayer:      a.Prayer,
			Weather:     a.Weather,
			Search:      a.Search,
		},
		server.Options{
			RateLimit: a.cfg.HTTP.RateLimit,
			Burst:     a.cfg.HTTP.Burst,
			Reciter:   a.cfg.Apps.Reciter,
		},
	)
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Logger().Info("http server listening", "addr", a.cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// RunTelegram long-polls the bot until ctx is done.
func (a *App) RunTelegram(ctx context.Context) error {
	if a.cfg.Telegram.TelegramAPIToken == "" {
		return errors.New("TELEGRAM_APITOKEN is required")
	}
	bot, err := api.NewBotAPI(a.cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}
	observability.Logger().Info("authorized on telegram", "account", bot.Self.UserName)

	userUsecase := usecase.NewUserUsecase(
		usecase.UserUsecaseDeps{
			TelegramLinkStorage: a.links,
			Workspaces:          a.Workspaces,
		},
		a.cfg.Telegram,
	)
	telegramUsecase, err := usecase.NewTelegramUsecase(
		a.cfg.Telegram, usecase.TelegramUsecaseDeps{
			User:     userUsecase,
			Personas: a.Personas,
			Bot:      bot,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram usecase: %w", err)
	}
	defer bot.StopReceivingUpdates()
	return telegramUsecase.Run(ctx)
}
