package resolver

import (
	"context"
	"log"
	"time"

	"github.com/sourcegraph/conc/pool"

	"streamvault/config"
	"streamvault/models"
)

// PrefetchEvents receives progress callbacks while a batch runs.
type PrefetchEvents struct {
	// OnLink fires for each validated link found for an item.
	OnLink func(item models.PrefetchItem, link models.StreamLink)
	// OnItemDone fires once per item with the number of links found.
	// Skipped and failed items report zero.
	OnItemDone func(item models.PrefetchItem, links int)
	// OnDone fires after the whole batch has been processed.
	OnDone func()
}

// Prefetcher warms the durable store for a batch of items in the
// background. Items already resolved durably are skipped, and item
// processing is paced so a large batch does not hammer upstreams.
type Prefetcher struct {
	resolver *Service
	durable  DurableStore
	workers  int
	pacing   time.Duration
}

func NewPrefetcher(resolver *Service, durable DurableStore, cfg config.PrefetchSettings) *Prefetcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 3
	}
	return &Prefetcher{
		resolver: resolver,
		durable:  durable,
		workers:  workers,
		pacing:   cfg.PacingDelay(),
	}
}

// Run processes a batch asynchronously and returns immediately. The batch
// keeps running on the supplied context, so callers who must survive a
// client disconnect should pass a detached context.
func (p *Prefetcher) Run(ctx context.Context, items []models.PrefetchItem, events PrefetchEvents) {
	go func() {
		workers := pool.New().WithMaxGoroutines(p.workers)
		for _, item := range items {
			item := item
			workers.Go(func() {
				p.prefetchOne(ctx, item, events)
				if p.pacing > 0 {
					_ = sleepCtx(ctx, p.pacing)
				}
			})
		}
		workers.Wait()
		log.Printf("[prefetch] batch of %d items complete", len(items))
		if events.OnDone != nil {
			events.OnDone()
		}
	}()
}

func (p *Prefetcher) prefetchOne(ctx context.Context, item models.PrefetchItem, events PrefetchEvents) {
	identity := item.Identity()

	done, err := p.durable.HasIdentity(ctx, identity)
	if err != nil {
		log.Printf("[prefetch] durable check for %s failed: %v", identity.CacheKey(), err)
	}
	if done {
		log.Printf("[prefetch] %s already resolved, skipping", identity.CacheKey())
		if events.OnItemDone != nil {
			events.OnItemDone(item, 0)
		}
		return
	}

	var onLink OnLink
	if events.OnLink != nil {
		onLink = func(link models.StreamLink) { events.OnLink(item, link) }
	}

	links, err := p.resolver.Resolve(ctx, identity, onLink)
	if err != nil {
		log.Printf("[prefetch] resolve for %s failed: %v", identity.CacheKey(), err)
	}
	if events.OnItemDone != nil {
		events.OnItemDone(item, len(links))
	}
}
