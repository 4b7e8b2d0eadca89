package scrapers

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"streamvault/models"
)

// vidsrcMirrors are tried in order; the embed endpoint is the same on all
// of them and the player handles source selection itself.
var vidsrcMirrors = []string{
	"https://vidsrc-embed.ru",
	"https://vidsrc-embed.su",
	"https://vidsrcme.su",
	"https://vsrc.su",
}

// VidSrc builds embed player links keyed by TMDB or IMDB id. It performs no
// network I/O of its own, so it never fails once an id is known.
type VidSrc struct {
	name string
}

func NewVidSrc(name string) *VidSrc {
	if name == "" {
		name = "VidSrc"
	}
	return &VidSrc{name: name}
}

func (v *VidSrc) Name() string { return v.name }

func (v *VidSrc) Priority() int { return 10 }

func (v *VidSrc) Supports(mediaType models.MediaType) bool {
	return mediaType == models.MediaTypeMovie || mediaType == models.MediaTypeTV
}

// Search returns one synthetic result per mirror; the site is keyed by id,
// not by title, so there is nothing to look up.
func (v *VidSrc) Search(_ context.Context, query string, ids models.CrossRefIDs) []models.ScraperSearchResult {
	if ids.TMDBID == 0 && ids.IMDBID == "" {
		log.Printf("[scrapers] %s requires a TMDB or IMDB id, cannot search by title alone", v.name)
		return nil
	}

	idParam := fmt.Sprintf("tmdb=%d", ids.TMDBID)
	if ids.IMDBID != "" {
		idParam = "imdb=" + ids.IMDBID
	}

	results := make([]models.ScraperSearchResult, 0, len(vidsrcMirrors))
	for _, mirror := range vidsrcMirrors {
		host := mirror
		if u, err := url.Parse(mirror); err == nil {
			host = u.Hostname()
		}
		results = append(results, models.ScraperSearchResult{
			Title: fmt.Sprintf("%s (%s)", query, host),
			URL:   fmt.Sprintf("%s/embed/movie?%s", mirror, idParam),
		})
	}
	log.Printf("[scrapers] %s built %d embed candidates", v.name, len(results))
	return results
}

// StreamLinks rewrites the movie embed URL into a tv one when an episode
// selector is present, then wraps it as a single playable link.
func (v *VidSrc) StreamLinks(_ context.Context, pageURL string, sel EpisodeSelector) ([]models.StreamLink, error) {
	embed := pageURL
	if sel.Season > 0 {
		embed = strings.Replace(embed, "/embed/movie?", "/embed/tv?", 1)
		embed = fmt.Sprintf("%s&season=%d&episode=%d", embed, sel.Season, sel.Episode)
	}

	u, err := url.Parse(embed)
	if err != nil {
		return nil, fmt.Errorf("%s embed URL: %w", v.name, err)
	}
	origin := u.Scheme + "://" + u.Hostname()

	return []models.StreamLink{{
		URL:      embed,
		Quality:  "Auto",
		IsM3U8:   false,
		Provider: v.name,
		Headers: map[string]string{
			"Referer": origin + "/",
			"Origin":  origin,
		},
	}}, nil
}
