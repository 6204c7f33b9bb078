// Package miniapp holds the REST clients behind the bundled mini-apps.
package miniapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iamvkosarev/persona-chat/internal/observability"
)

const defaultTimeout = 15 * time.Second

var ErrUpstream = errors.New("upstream request failed")

// Cache stores raw upstream responses. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type fetcher struct {
	http  *http.Client
	cache Cache
}

func newFetcher(client *http.Client, cache Cache) fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return fetcher{http: client, cache: cache}
}

// getJSON decodes the body of a GET into out, serving it from the cache when
// cacheable and present.
func (f fetcher) getJSON(ctx context.Context, endpoint string, cacheable bool, out any) error {
	if cacheable && f.cache != nil {
		if raw, err := f.cache.Get(ctx, endpoint); err == nil {
			if err = json.Unmarshal(raw, out); err == nil {
				return nil
			}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %w", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %.200s", ErrUpstream, resp.StatusCode, raw)
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: failed to decode body: %w", ErrUpstream, err)
	}
	if cacheable && f.cache != nil {
		if err = f.cache.Set(ctx, endpoint, raw); err != nil {
			observability.LoggerFromContext(ctx).Warn("cache write failed", "error", err)
		}
	}
	return nil
}
