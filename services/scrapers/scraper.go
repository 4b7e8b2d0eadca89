// Package scrapers contains the provider adapters that turn a content
// identity into candidate stream links. Each adapter wraps one upstream
// site; failures stay inside the adapter and surface as an error for that
// provider only.
package scrapers

import (
	"context"
	"log"
	"sort"
	"strings"

	"streamvault/config"
	"streamvault/models"
)

// EpisodeSelector narrows link extraction to one episode and audio track.
// The zero value means non-episodic content.
type EpisodeSelector struct {
	Season     int
	Episode    int
	AudioTrack models.AudioTrack
}

// Scraper is one provider adapter. Three strategies implement it:
// deterministic embed URL construction, HTML page scraping, and headless
// browser extraction.
type Scraper interface {
	Name() string
	// Priority orders adapters in logs and listings; it carries no
	// scheduling weight.
	Priority() int
	Supports(mediaType models.MediaType) bool
	// Search finds candidate pages for a title. It is best-effort: any
	// internal failure is logged inside the adapter and surfaces as an
	// empty result set, never an error.
	Search(ctx context.Context, query string, ids models.CrossRefIDs) []models.ScraperSearchResult
	// StreamLinks extracts playable links from one search result URL.
	StreamLinks(ctx context.Context, pageURL string, sel EpisodeSelector) ([]models.StreamLink, error)
}

// BuildFromConfig instantiates the enabled adapters and sorts them by
// priority, keeping configuration order within a priority tier.
// Unknown adapter types are logged and skipped rather than failing startup.
func BuildFromConfig(cfgs []config.ScraperConfig, vidlink config.VidLinkSettings) []Scraper {
	var out []Scraper
	for _, sc := range cfgs {
		if !sc.Enabled {
			continue
		}
		switch strings.ToLower(sc.Type) {
		case "vidsrc":
			out = append(out, NewVidSrc(sc.Name))
		case "vidlink":
			out = append(out, NewVidLink(sc.Name, sc.BaseURL, vidlink))
		case "gogoanime":
			out = append(out, NewGogoAnime(sc.Name, sc.BaseURL))
		case "animepahe":
			out = append(out, NewAnimePahe(sc.Name, sc.BaseURL))
		default:
			log.Printf("[scrapers] Unknown scraper type %q for %s, skipping", sc.Type, sc.Name)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() > out[j].Priority() })
	return out
}
