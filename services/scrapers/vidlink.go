package scrapers

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"streamvault/config"
	"streamvault/models"
)

// VidLink builds themed embed player links from a TMDB id. Player colors
// and icon set come from configuration so the embed matches the frontend
// theme.
type VidLink struct {
	name    string
	baseURL string
	theme   config.VidLinkSettings
}

func NewVidLink(name, baseURL string, theme config.VidLinkSettings) *VidLink {
	if name == "" {
		name = "VidLink"
	}
	if baseURL == "" {
		baseURL = "https://vidlink.pro"
	}
	return &VidLink{name: name, baseURL: baseURL, theme: theme}
}

func (v *VidLink) Name() string { return v.name }

func (v *VidLink) Priority() int { return 10 }

func (v *VidLink) Supports(mediaType models.MediaType) bool {
	return mediaType == models.MediaTypeMovie || mediaType == models.MediaTypeTV
}

// Search returns a single synthetic result carrying the movie embed path;
// the site is addressed purely by TMDB id.
func (v *VidLink) Search(_ context.Context, query string, ids models.CrossRefIDs) []models.ScraperSearchResult {
	if ids.TMDBID == 0 {
		log.Printf("[scrapers] %s requires a TMDB id, cannot search by title alone", v.name)
		return nil
	}
	return []models.ScraperSearchResult{{
		Title: query,
		URL:   fmt.Sprintf("%s/movie/%d", v.baseURL, ids.TMDBID),
	}}
}

// StreamLinks rewrites the movie path into a tv one when an episode
// selector is present and appends the configured player theme.
func (v *VidLink) StreamLinks(_ context.Context, pageURL string, sel EpisodeSelector) ([]models.StreamLink, error) {
	embed := pageURL
	if sel.Season > 0 {
		var tmdbID int
		if _, err := fmt.Sscanf(pageURL, v.baseURL+"/movie/%d", &tmdbID); err != nil {
			return nil, fmt.Errorf("%s embed URL %q: %w", v.name, pageURL, err)
		}
		embed = fmt.Sprintf("%s/tv/%d/%d/%d", v.baseURL, tmdbID, sel.Season, sel.Episode)
	}

	params := url.Values{}
	params.Set("primaryColor", v.theme.PrimaryColor)
	params.Set("secondaryColor", v.theme.SecondaryColor)
	params.Set("iconColor", v.theme.IconColor)
	params.Set("icons", v.theme.Icons)
	params.Set("title", "true")
	params.Set("poster", "true")
	params.Set("nextbutton", "true")
	embed = embed + "?" + params.Encode()

	return []models.StreamLink{{
		URL:      embed,
		Quality:  "Auto",
		IsM3U8:   false,
		Provider: v.name,
		Headers: map[string]string{
			"Referer": v.baseURL + "/",
			"Origin":  v.baseURL,
		},
	}}, nil
}
