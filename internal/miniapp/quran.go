package miniapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultQuranBaseURL = "https://api.alquran.cloud/v1"
	DefaultReciter      = "ar.alafasy"
	SurahCount          = 114

	quranEdition     = "quran-uthmani"
	maxSearchResults = 50
	playlistWorkers  = 8
)

var (
	ErrSurahNotFound = errors.New("surah not found")
	ErrAyahNotFound  = errors.New("ayah not found")
	ErrEmptyQuery    = errors.New("search query is empty")
)

type Ayah struct {
	Number        int    `json:"number"`
	NumberInSurah int    `json:"numberInSurah"`
	Text          string `json:"text"`
	Juz           int    `json:"juz"`
	Page          int    `json:"page"`
}

type Surah struct {
	Number         int    `json:"number"`
	Name           string `json:"name"`
	EnglishName    string `json:"englishName"`
	RevelationType string `json:"revelationType"`
	Ayahs          []Ayah `json:"ayahs"`
}

type SearchMatch struct {
	Surah     int    `json:"surah"`
	SurahName string `json:"surah_name"`
	Ayah      int    `json:"ayah"`
	Text      string `json:"text"`
}

// Track is one ayah of an audio playlist. The reader highlights the ayah
// of the track that is playing.
type Track struct {
	Surah int    `json:"surah"`
	Ayah  int    `json:"ayah"`
	Audio string `json:"audio"`
}

type quranResponse struct {
	Data struct {
		Surahs []Surah `json:"surahs"`
	} `json:"data"`
}

type ayahAudioResponse struct {
	Data struct {
		Number int    `json:"number"`
		Audio  string `json:"audio"`
	} `json:"data"`
}

type audioKey struct {
	surah, ayah int
	reciter     string
}

// QuranClient serves the Quran text, fetched once per process, and ayah
// recitations from alquran.cloud.
type QuranClient struct {
	baseURL string
	fetch   fetcher

	mu     sync.Mutex
	surahs []Surah
	folded [][]string

	audioMu sync.RWMutex
	audio   map[audioKey]string
}

func NewQuranClient(baseURL string, client *http.Client, cache Cache) *QuranClient {
	if baseURL == "" {
		baseURL = DefaultQuranBaseURL
	}
	return &QuranClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetch:   newFetcher(client, cache),
		audio:   make(map[audioKey]string),
	}
}

// load fetches the full text on first use. A failed fetch is retried on the next call.
func (q *QuranClient) load(ctx context.Context) ([]Surah, [][]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.surahs != nil {
		return q.surahs, q.folded, nil
	}
	var res quranResponse
	if err := q.fetch.getJSON(ctx, q.baseURL+"/quran/"+quranEdition, true, &res); err != nil {
		return nil, nil, fmt.Errorf("failed to load quran text: %w", err)
	}
	if len(res.Data.Surahs) == 0 {
		return nil, nil, fmt.Errorf("%w: empty quran text", ErrUpstream)
	}
	folded := make([][]string, len(res.Data.Surahs))
	for i, surah := range res.Data.Surahs {
		folded[i] = make([]string, len(surah.Ayahs))
		for j, ayah := range surah.Ayahs {
			folded[i][j] = FoldArabic(ayah.Text)
		}
	}
	q.surahs, q.folded = res.Data.Surahs, folded
	return q.surahs, q.folded, nil
}

func (q *QuranClient) Surahs(ctx context.Context) ([]Surah, error) {
	surahs, _, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Surah, len(surahs))
	for i, s := range surahs {
		out[i] = Surah{Number: s.Number, Name: s.Name, EnglishName: s.EnglishName, RevelationType: s.RevelationType}
	}
	return out, nil
}

func (q *QuranClient) Surah(ctx context.Context, number int) (Surah, error) {
	surahs, _, err := q.load(ctx)
	if err != nil {
		return Surah{}, err
	}
	if number < 1 || number > len(surahs) {
		return Surah{}, fmt.Errorf("%w: %d", ErrSurahNotFound, number)
	}
	return surahs[number-1], nil
}

// Search matches the query against every ayah ignoring diacritics and letter variants.
func (q *QuranClient) Search(ctx context.Context, query string, limit int) ([]SearchMatch, error) {
	needle := FoldArabic(query)
	if needle == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	surahs, folded, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	var matches []SearchMatch
	for i, surah := range surahs {
		for j, ayah := range surah.Ayahs {
			if !strings.Contains(folded[i][j], needle) {
				continue
			}
			matches = append(matches, SearchMatch{
				Surah:     surah.Number,
				SurahName: surah.Name,
				Ayah:      ayah.NumberInSurah,
				Text:      ayah.Text,
			})
			if len(matches) == limit {
				return matches, nil
			}
		}
	}
	return matches, nil
}

func (q *QuranClient) AyahAudio(ctx context.Context, surah, ayah int, reciter string) (string, error) {
	if surah < 1 || surah > SurahCount {
		return "", fmt.Errorf("%w: %d", ErrSurahNotFound, surah)
	}
	if ayah < 1 {
		return "", fmt.Errorf("%w: %d:%d", ErrAyahNotFound, surah, ayah)
	}
	if reciter == "" {
		reciter = DefaultReciter
	}
	key := audioKey{surah: surah, ayah: ayah, reciter: reciter}
	q.audioMu.RLock()
	url, ok := q.audio[key]
	q.audioMu.RUnlock()
	if ok {
		return url, nil
	}

	var res ayahAudioResponse
	endpoint := fmt.Sprintf("%s/ayah/%d:%d/%s", q.baseURL, surah, ayah, reciter)
	if err := q.fetch.getJSON(ctx, endpoint, true, &res); err != nil {
		return "", fmt.Errorf("failed to get ayah audio %d:%d: %w", surah, ayah, err)
	}
	if res.Data.Audio == "" {
		return "", fmt.Errorf("%w: no audio for %d:%d", ErrAyahNotFound, surah, ayah)
	}
	q.audioMu.Lock()
	q.audio[key] = res.Data.Audio
	q.audioMu.Unlock()
	return res.Data.Audio, nil
}

// Playlist resolves the recitation of a surah starting at from, in ayah order.
func (q *QuranClient) Playlist(ctx context.Context, surah, from int, reciter string) ([]Track, error) {
	s, err := q.Surah(ctx, surah)
	if err != nil {
		return nil, err
	}
	if from < 1 {
		from = 1
	}
	if from > len(s.Ayahs) {
		return nil, fmt.Errorf("%w: %d:%d", ErrAyahNotFound, surah, from)
	}
	tracks := make([]Track, len(s.Ayahs)-from+1)
	p := pool.New().WithMaxGoroutines(playlistWorkers).WithErrors().WithContext(ctx).WithCancelOnError()
	for i := range tracks {
		ayah := from + i
		p.Go(func(ctx context.Context) error {
			url, err := q.AyahAudio(ctx, surah, ayah, reciter)
			if err != nil {
				return err
			}
			tracks[i] = Track{Surah: surah, Ayah: ayah, Audio: url}
			return nil
		})
	}
	if err = p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build playlist: %w", err)
	}
	return tracks, nil
}

var arabicLetterVariants = runes.Map(func(r rune) rune {
	switch r {
	case 'أ', 'إ', 'آ', 'ٱ':
		return 'ا'
	case 'ى':
		return 'ي'
	case 'ة':
		return 'ه'
	case 'ؤ':
		return 'و'
	case 'ئ':
		return 'ي'
	default:
		return r
	}
})

// FoldArabic strips harakat and tatweel and unifies letter variants so that
// plain queries match the Uthmani text.
func FoldArabic(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == 'ـ' || r == '۟' || r == 'ۥ' || r == 'ۦ' })),
		norm.NFC,
		arabicLetterVariants,
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}
