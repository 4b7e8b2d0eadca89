package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"streamvault/config"
	"streamvault/models"
	"streamvault/services/scrapers"
)

func newTestPrefetcher(adapter *fakeScraper, durable *fakeDurable) *Prefetcher {
	svc := NewService([]scrapers.Scraper{adapter}, matrixMetadata(), &fakeValidator{}, newFakeCache(), durable, nil)
	return NewPrefetcher(svc, durable, config.PrefetchSettings{Workers: 3, PacingDelayMS: 1})
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch batch never completed")
	}
}

func TestPrefetchResolvesBatch(t *testing.T) {
	adapter := &fakeScraper{name: "A", links: []models.StreamLink{{URL: "https://a.example/1", Provider: "A"}}}
	durable := newFakeDurable()
	p := newTestPrefetcher(adapter, durable)

	items := []models.PrefetchItem{
		{ID: "1", PrimaryID: 603, MediaType: models.MediaTypeMovie},
		{ID: "2", PrimaryID: 604, MediaType: models.MediaTypeMovie},
	}

	var (
		mu        sync.Mutex
		linkCount int
		itemsDone int
	)
	done := make(chan struct{})
	p.Run(context.Background(), items, PrefetchEvents{
		OnLink: func(models.PrefetchItem, models.StreamLink) {
			mu.Lock()
			linkCount++
			mu.Unlock()
		},
		OnItemDone: func(models.PrefetchItem, int) {
			mu.Lock()
			itemsDone++
			mu.Unlock()
		},
		OnDone: func() { close(done) },
	})
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	if linkCount != 2 || itemsDone != 2 {
		t.Fatalf("links=%d itemsDone=%d", linkCount, itemsDone)
	}
	for _, item := range items {
		ok, _ := durable.HasIdentity(context.Background(), item.Identity())
		if !ok {
			t.Fatalf("item %s not warmed", item.ID)
		}
	}
}

func TestPrefetchSkipsAlreadyResolved(t *testing.T) {
	adapter := &fakeScraper{name: "A", links: []models.StreamLink{{URL: "https://a.example/1"}}}
	durable := newFakeDurable()

	warm := models.PrefetchItem{ID: "1", PrimaryID: 603, MediaType: models.MediaTypeMovie}
	durable.rows[warm.Identity().CacheKey()] = []models.StreamLink{{URL: "https://a.example/stored"}}

	p := newTestPrefetcher(adapter, durable)

	var reported int
	done := make(chan struct{})
	p.Run(context.Background(), []models.PrefetchItem{warm}, PrefetchEvents{
		OnItemDone: func(_ models.PrefetchItem, links int) { reported = links },
		OnDone:     func() { close(done) },
	})
	waitFor(t, done)

	if adapter.calls.Load() != 0 {
		t.Fatal("already-resolved item triggered a resolution")
	}
	if reported != 0 {
		t.Fatalf("skipped item reported %d links", reported)
	}
}

func TestPrefetchEpisodicDefaults(t *testing.T) {
	item := models.PrefetchItem{ID: "x", PrimaryID: 16498, MediaType: models.MediaTypeAnime}
	id := item.Identity()
	if id.Season != 1 || id.Episode != 1 {
		t.Fatalf("episodic prefetch should target S1E1, got S%dE%d", id.Season, id.Episode)
	}
	if id.AudioTrack != models.AudioTrackSub {
		t.Fatalf("anime prefetch should default to sub, got %q", id.AudioTrack)
	}

	movie := models.PrefetchItem{ID: "y", PrimaryID: 603, MediaType: models.MediaTypeMovie}
	mid := movie.Identity()
	if mid.Season != 0 || mid.Episode != 0 || mid.AudioTrack != "" {
		t.Fatalf("movie prefetch identity polluted: %+v", mid)
	}
}

func TestPrefetchRunReturnsImmediately(t *testing.T) {
	adapter := &fakeScraper{name: "Slow", delay: 200 * time.Millisecond, links: []models.StreamLink{{URL: "https://a.example/1"}}}
	durable := newFakeDurable()
	p := newTestPrefetcher(adapter, durable)

	start := time.Now()
	done := make(chan struct{})
	p.Run(context.Background(), []models.PrefetchItem{{ID: "1", PrimaryID: 603, MediaType: models.MediaTypeMovie}}, PrefetchEvents{
		OnDone: func() { close(done) },
	})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Run blocked on the batch")
	}
	waitFor(t, done)
}
