package miniapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

const (
	DefaultSearchBaseURL = "https://www.googleapis.com/customsearch/v1"
	searchPageSize       = 10
	maxSearchStart       = 91
)

var ErrSearchNotConfigured = errors.New("search is not configured")

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Image   struct {
			ThumbnailLink string `json:"thumbnailLink"`
			Width         int    `json:"width"`
			Height        int    `json:"height"`
		} `json:"image"`
	} `json:"items"`
}

// SearchClient queries Google Custom Search. It also grounds model answers
// for providers without native web search.
type SearchClient struct {
	baseURL string
	apiKey  string
	engine  string
	fetch   fetcher
}

func NewSearchClient(baseURL, apiKey, engineID string, client *http.Client) *SearchClient {
	if baseURL == "" {
		baseURL = DefaultSearchBaseURL
	}
	return &SearchClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		engine:  engineID,
		fetch:   newFetcher(client, nil),
	}
}

func (s *SearchClient) Configured() bool {
	return s.apiKey != "" && s.engine != ""
}

// Search returns one page of hits. start is the 1-based index of the first hit.
func (s *SearchClient) Search(ctx context.Context, query string, kind model.SearchType, start int) ([]model.SearchHit, error) {
	if !s.Configured() {
		return nil, ErrSearchNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	start = min(max(start, 1), maxSearchStart)

	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("cx", s.engine)
	q.Set("q", query)
	q.Set("start", strconv.Itoa(start))
	q.Set("num", strconv.Itoa(searchPageSize))
	if kind == model.SearchImage {
		q.Set("searchType", "image")
	}
	var res searchResponse
	if err := s.fetch.getJSON(ctx, s.baseURL+"?"+q.Encode(), false, &res); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	hits := make([]model.SearchHit, 0, len(res.Items))
	for _, item := range res.Items {
		hits = append(hits, model.SearchHit{
			Title:     item.Title,
			Link:      item.Link,
			Snippet:   item.Snippet,
			Thumbnail: item.Image.ThumbnailLink,
			Width:     item.Image.Width,
			Height:    item.Image.Height,
		})
	}
	return hits, nil
}

func (s *SearchClient) WebSearch(ctx context.Context, query string, start int) ([]model.SearchHit, error) {
	return s.Search(ctx, query, model.SearchWeb, start)
}
