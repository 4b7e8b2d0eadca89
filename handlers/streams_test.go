package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"

	"streamvault/config"
	"streamvault/models"
	"streamvault/services/resolver"
	"streamvault/services/scrapers"
)

type stubScraper struct {
	links []models.StreamLink
	calls atomic.Int32
}

func (s *stubScraper) Name() string                   { return "Stub" }
func (s *stubScraper) Priority() int                  { return 10 }
func (s *stubScraper) Supports(models.MediaType) bool { return true }

func (s *stubScraper) Search(_ context.Context, query string, _ models.CrossRefIDs) []models.ScraperSearchResult {
	return []models.ScraperSearchResult{{Title: query, URL: "https://stub.example/series/1"}}
}

func (s *stubScraper) StreamLinks(context.Context, string, scrapers.EpisodeSelector) ([]models.StreamLink, error) {
	s.calls.Add(1)
	return s.links, nil
}

type stubMetadata struct{ err error }

func (s *stubMetadata) Resolve(context.Context, models.ContentIdentity) (models.ResolvedMetadata, error) {
	if s.err != nil {
		return models.ResolvedMetadata{}, s.err
	}
	return models.ResolvedMetadata{Title: "The Matrix", IDs: models.CrossRefIDs{TMDBID: 603}}, nil
}

type passValidator struct{}

func (passValidator) Validate(context.Context, models.StreamLink) bool { return true }

type memCache struct {
	mu      sync.Mutex
	entries map[string][]models.StreamLink
}

func (m *memCache) Get(id models.ContentIdentity) ([]models.StreamLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	links, ok := m.entries[id.CacheKey()]
	return links, ok
}

func (m *memCache) Put(id models.ContentIdentity, links []models.StreamLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string][]models.StreamLink)
	}
	m.entries[id.CacheKey()] = links
}

func (m *memCache) Remove(id models.ContentIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id.CacheKey())
}

type memDurable struct {
	mu   sync.Mutex
	rows map[string][]models.StreamLink
}

func (m *memDurable) FindByIdentity(_ context.Context, id models.ContentIdentity) ([]models.StreamLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id.CacheKey()], nil
}

func (m *memDurable) HasIdentity(_ context.Context, id models.ContentIdentity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[id.CacheKey()]) > 0, nil
}

func (m *memDurable) InsertIfAbsent(_ context.Context, id models.ContentIdentity, link models.StreamLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string][]models.StreamLink)
	}
	m.rows[id.CacheKey()] = append(m.rows[id.CacheKey()], link)
	return nil
}

func (m *memDurable) DeleteByIdentity(_ context.Context, id models.ContentIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id.CacheKey())
	return nil
}

func newTestHandler(meta *stubMetadata, links []models.StreamLink) *StreamsHandler {
	svc := resolver.NewService(
		[]scrapers.Scraper{&stubScraper{links: links}},
		meta, passValidator{}, &memCache{}, &memDurable{}, nil,
	)
	p := resolver.NewPrefetcher(svc, &memDurable{}, config.PrefetchSettings{Workers: 1})
	return NewStreamsHandler(svc, p)
}

func newTestRouter(h *StreamsHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/streams/{id:[0-9]+}/{season:[0-9]+}/{episode:[0-9]+}", h.GetStreamsNested).Methods(http.MethodGet)
	r.HandleFunc("/api/streams/{id:[0-9]+}/{season:[0-9]+}/{episode:[0-9]+}", h.DeleteStreams).Methods(http.MethodDelete)
	r.HandleFunc("/api/streams/{id:[0-9]+}", h.GetStreams).Methods(http.MethodGet)
	r.HandleFunc("/api/streams/{id:[0-9]+}", h.DeleteStreams).Methods(http.MethodDelete)
	r.HandleFunc("/api/streams/prefetch", h.Prefetch).Methods(http.MethodPost)
	return r
}

func TestGetStreamsReturnsLinks(t *testing.T) {
	h := newTestHandler(&stubMetadata{}, []models.StreamLink{{URL: "https://a.example/1", Provider: "Stub"}})
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/603", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "https://a.example/1") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGetStreamsMetadataFailureYieldsEmptyList(t *testing.T) {
	h := newTestHandler(&stubMetadata{err: errors.New("catalog down")}, nil)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/603", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("expected empty list, got %s", got)
	}
}

func TestGetStreamsNestedRoute(t *testing.T) {
	h := newTestHandler(&stubMetadata{}, []models.StreamLink{{URL: "https://a.example/ep"}})
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/1396/2/5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "https://a.example/ep") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestDeleteStreamsInvalidates(t *testing.T) {
	stub := &stubScraper{links: []models.StreamLink{{URL: "https://a.example/1", Provider: "Stub"}}}
	durable := &memDurable{}
	svc := resolver.NewService([]scrapers.Scraper{stub}, &stubMetadata{}, passValidator{}, &memCache{}, durable, nil)
	h := NewStreamsHandler(svc, resolver.NewPrefetcher(svc, durable, config.PrefetchSettings{Workers: 1}))
	router := newTestRouter(h)

	// Resolve once so both tiers hold the identity.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/603", nil))
	if rec.Code != http.StatusOK || stub.calls.Load() != 1 {
		t.Fatalf("seed resolve: status=%d calls=%d", rec.Code, stub.calls.Load())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/streams/603", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	id := models.ContentIdentity{PrimaryID: 603, MediaType: models.MediaTypeMovie}
	if ok, _ := durable.HasIdentity(context.Background(), id); ok {
		t.Fatal("durable rows survived deletion")
	}

	// The next resolve scrapes fresh instead of replaying a tier.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/603", nil))
	if rec.Code != http.StatusOK || stub.calls.Load() != 2 {
		t.Fatalf("post-delete resolve: status=%d calls=%d", rec.Code, stub.calls.Load())
	}
}

func TestDeleteStreamsRejectsBadIdentity(t *testing.T) {
	h := newTestHandler(&stubMetadata{}, nil)
	router := newTestRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/streams/603?mediaType=podcast", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPrefetchAccepted(t *testing.T) {
	h := newTestHandler(&stubMetadata{}, []models.StreamLink{{URL: "https://a.example/1"}})
	router := newTestRouter(h)

	body := strings.NewReader(`{"items":[{"id":"1","primaryId":603,"mediaType":"movie"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/streams/prefetch", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPrefetchRejectsEmptyBatch(t *testing.T) {
	h := newTestHandler(&stubMetadata{}, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/streams/prefetch", strings.NewReader(`{"items":[]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIdentityFromRequest(t *testing.T) {
	cases := []struct {
		name    string
		id      string
		season  string
		episode string
		media   string
		track   string
		want    models.ContentIdentity
		wantErr bool
	}{
		{
			name: "movie by id only",
			id:   "603",
			want: models.ContentIdentity{PrimaryID: 603, MediaType: models.MediaTypeMovie},
		},
		{
			name: "tv inferred from episode", id: "1396", season: "2", episode: "5",
			want: models.ContentIdentity{PrimaryID: 1396, MediaType: models.MediaTypeTV, Season: 2, Episode: 5},
		},
		{
			name: "anime defaults to sub", id: "16498", episode: "3", media: "anime",
			want: models.ContentIdentity{PrimaryID: 16498, MediaType: models.MediaTypeAnime, Season: 1, Episode: 3, AudioTrack: models.AudioTrackSub},
		},
		{
			name: "anime dub", id: "16498", season: "1", episode: "3", media: "anime", track: "dub",
			want: models.ContentIdentity{PrimaryID: 16498, MediaType: models.MediaTypeAnime, Season: 1, Episode: 3, AudioTrack: models.AudioTrackDub},
		},
		{name: "bad id", id: "abc", wantErr: true},
		{name: "bad media type", id: "1", media: "podcast", wantErr: true},
		{name: "tv without episode", id: "1396", media: "tv", wantErr: true},
		{name: "bad track", id: "16498", episode: "1", media: "anime", track: "raw", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := identityFromRequest(tc.id, tc.season, tc.episode, tc.media, tc.track)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
