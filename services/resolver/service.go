// Package resolver turns a content identity into validated stream links.
// Providers are queried concurrently and links are surfaced to the caller
// as each one survives validation, so clients see candidates before the
// slowest provider finishes.
package resolver

import (
	"context"
	"log"
	"sync"

	"github.com/sourcegraph/conc"

	"streamvault/models"
	"streamvault/services/scrapers"
)

// MetadataResolver supplies the title and cross-reference ids scraping
// needs.
type MetadataResolver interface {
	Resolve(ctx context.Context, identity models.ContentIdentity) (models.ResolvedMetadata, error)
}

// LinkValidator gates which candidate links reach callers.
type LinkValidator interface {
	Validate(ctx context.Context, link models.StreamLink) bool
}

// StreamCache is the ephemeral tier consulted before any provider runs.
type StreamCache interface {
	Get(id models.ContentIdentity) ([]models.StreamLink, bool)
	Put(id models.ContentIdentity, links []models.StreamLink)
	Remove(id models.ContentIdentity)
}

// DurableStore is the persistent tier behind the ephemeral cache.
type DurableStore interface {
	FindByIdentity(ctx context.Context, id models.ContentIdentity) ([]models.StreamLink, error)
	HasIdentity(ctx context.Context, id models.ContentIdentity) (bool, error)
	InsertIfAbsent(ctx context.Context, id models.ContentIdentity, link models.StreamLink) error
	DeleteByIdentity(ctx context.Context, id models.ContentIdentity) error
}

// ProviderMappings remembers which provider-side URL a title resolved to,
// so the search step is skipped on later resolutions. Keys carry no
// episode; one mapping covers a whole series.
type ProviderMappings interface {
	Find(ctx context.Context, provider string, id models.ContentIdentity) (string, error)
	Upsert(ctx context.Context, provider string, id models.ContentIdentity, providerURL, title string) error
}

// OnLink receives each validated link as it is found.
type OnLink func(link models.StreamLink)

type Service struct {
	mu        sync.RWMutex
	scrapers  []scrapers.Scraper
	metadata  MetadataResolver
	validator LinkValidator
	cache     StreamCache
	durable   DurableStore
	mappings  ProviderMappings
}

func NewService(adapters []scrapers.Scraper, metadata MetadataResolver, validator LinkValidator, cache StreamCache, durable DurableStore, mappings ProviderMappings) *Service {
	return &Service{
		scrapers:  adapters,
		metadata:  metadata,
		validator: validator,
		cache:     cache,
		durable:   durable,
		mappings:  mappings,
	}
}

// ReloadScrapers swaps the adapter registry in place, so scraper settings
// changes take effect without a restart.
func (s *Service) ReloadScrapers(adapters []scrapers.Scraper) {
	s.mu.Lock()
	s.scrapers = adapters
	s.mu.Unlock()
	log.Printf("[resolver] reloaded %d scraper adapter(s)", len(adapters))
}

func (s *Service) adapters() []scrapers.Scraper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scrapers
}

// Resolve returns every playable link for an identity. Cached results
// short-circuit the providers entirely; otherwise all supporting providers
// run concurrently and each validated link is handed to onLink the moment
// it is known, in completion order. One provider failing never affects the
// others. The only fatal failure is metadata resolution, reported as a
// MetadataError.
func (s *Service) Resolve(ctx context.Context, identity models.ContentIdentity, onLink OnLink) ([]models.StreamLink, error) {
	key := identity.CacheKey()

	if cached, ok := s.cache.Get(identity); ok {
		log.Printf("[resolver] cache hit for %s (%d links)", key, len(cached))
		emitAll(cached, onLink)
		return cached, nil
	}

	durable, err := s.durable.FindByIdentity(ctx, identity)
	if err != nil {
		log.Printf("[resolver] durable lookup for %s failed: %v", key, err)
	} else if len(durable) > 0 {
		log.Printf("[resolver] durable hit for %s (%d links)", key, len(durable))
		s.cache.Put(identity, durable)
		emitAll(durable, onLink)
		return durable, nil
	}

	meta, err := s.metadata.Resolve(ctx, identity)
	if err != nil {
		return nil, &MetadataError{Key: key, Err: err}
	}

	adapters := s.adapters()

	var (
		mu    sync.Mutex
		found []models.StreamLink
		wg    conc.WaitGroup
	)
	for _, adapter := range adapters {
		if !adapter.Supports(identity.MediaType) {
			continue
		}
		adapter := adapter
		wg.Go(func() {
			for _, link := range s.collectLinks(ctx, adapter, identity, meta) {
				if !s.validator.Validate(ctx, link) {
					log.Printf("[resolver] dropped dead link from %s: %s", adapter.Name(), link.URL)
					continue
				}
				mu.Lock()
				found = append(found, link)
				mu.Unlock()
				if onLink != nil {
					onLink(link)
				}
				if err := s.durable.InsertIfAbsent(ctx, identity, link); err != nil {
					log.Printf("[resolver] persist for %s failed: %v", key, err)
				}
			}
		})
	}
	wg.Wait()

	log.Printf("[resolver] resolved %s: %d links from %d providers", key, len(found), len(adapters))
	s.cache.Put(identity, found)
	return found, nil
}

// collectLinks runs one adapter's pipeline: provider mapping lookup, live
// search with first-result upsert when no mapping exists, then link
// extraction per result. Failures stay inside this adapter's contribution.
func (s *Service) collectLinks(ctx context.Context, adapter scrapers.Scraper, identity models.ContentIdentity, meta models.ResolvedMetadata) []models.StreamLink {
	mapKey := identity.WithoutEpisode()

	var results []models.ScraperSearchResult
	if s.mappings != nil {
		mapped, err := s.mappings.Find(ctx, adapter.Name(), mapKey)
		if err != nil {
			log.Printf("[resolver] %s mapping lookup failed: %v", adapter.Name(), err)
		} else if mapped != "" {
			results = []models.ScraperSearchResult{{Title: meta.Title, URL: mapped}}
		}
	}

	if len(results) == 0 {
		results = adapter.Search(ctx, meta.Title, meta.IDs)
		if len(results) == 0 {
			log.Printf("[resolver] %s found nothing for %q", adapter.Name(), meta.Title)
			return nil
		}
		if s.mappings != nil {
			if err := s.mappings.Upsert(ctx, adapter.Name(), mapKey, results[0].URL, results[0].Title); err != nil {
				log.Printf("[resolver] %s mapping upsert failed: %v", adapter.Name(), err)
			}
		}
	}

	var sel scrapers.EpisodeSelector
	if identity.MediaType.IsEpisodic() {
		sel = scrapers.EpisodeSelector{
			Season:     identity.Season,
			Episode:    identity.Episode,
			AudioTrack: identity.AudioTrack,
		}
	}

	var links []models.StreamLink
	for _, result := range results {
		extracted, err := adapter.StreamLinks(ctx, result.URL, sel)
		if err != nil {
			log.Printf("[resolver] %s failed for %s: %v", adapter.Name(), result.URL, err)
			continue
		}
		links = append(links, extracted...)
	}
	return links
}

// Invalidate drops an identity from both tiers so the next resolution
// scrapes fresh. Used when every stored link for an identity is dead.
func (s *Service) Invalidate(ctx context.Context, identity models.ContentIdentity) error {
	s.cache.Remove(identity)
	if err := s.durable.DeleteByIdentity(ctx, identity); err != nil {
		return err
	}
	log.Printf("[resolver] invalidated %s", identity.CacheKey())
	return nil
}

func emitAll(links []models.StreamLink, onLink OnLink) {
	if onLink == nil {
		return
	}
	for _, link := range links {
		onLink(link)
	}
}
