package scrapers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sourcegraph/conc"

	"streamvault/models"
)

var (
	gogoEpisodeSuffix = regexp.MustCompile(`-episode-\d+(-english-(subbed|dubbed))?$`)
	gogoTrackSuffix   = regexp.MustCompile(`-(eng|dub|sub)$`)
)

const gogoPlayerEndpoint = "https://9animetv.be/wp-content/plugins/video-player/includes/player/player.php"

// GogoAnime scrapes episode pages for embedded player links. The site has
// shipped three different player markups over time, so extraction tries
// each in turn.
type GogoAnime struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewGogoAnime(name, baseURL string) *GogoAnime {
	if name == "" {
		name = "GogoAnime"
	}
	if baseURL == "" {
		baseURL = "https://gogoanime.by"
	}
	return &GogoAnime{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetHTTPClient overrides the HTTP client, used by tests.
func (g *GogoAnime) SetHTTPClient(c *http.Client) { g.client = c }

// SetBaseURL overrides the site base URL, used by tests.
func (g *GogoAnime) SetBaseURL(u string) { g.baseURL = strings.TrimRight(u, "/") }

func (g *GogoAnime) Name() string { return g.name }

func (g *GogoAnime) Priority() int { return 15 }

func (g *GogoAnime) Supports(mediaType models.MediaType) bool {
	return mediaType == models.MediaTypeAnime || mediaType == models.MediaTypeTV
}

// Search queries the site search page and parses result cards. A failed
// fetch is logged and reported as no results.
func (g *GogoAnime) Search(ctx context.Context, query string, _ models.CrossRefIDs) []models.ScraperSearchResult {
	searchURL := fmt.Sprintf("%s/?s=%s", g.baseURL, url.QueryEscape(query))

	doc, err := g.fetchDocument(ctx, searchURL)
	if err != nil {
		log.Printf("[scrapers] %s search for %q failed: %v", g.name, query, err)
		return nil
	}

	var results []models.ScraperSearchResult
	doc.Find("a.tip").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".tt.tts").Text())
		if title == "" {
			title = strings.TrimSpace(sel.AttrOr("title", ""))
		}
		title = strings.Join(strings.Fields(title), " ")
		href := sel.AttrOr("href", "")
		if title == "" || href == "" {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = g.baseURL + href
		}
		results = append(results, models.ScraperSearchResult{
			Title:  title,
			URL:    href,
			Poster: sel.Find("img").AttrOr("src", ""),
		})
	})

	log.Printf("[scrapers] %s found %d results for %q", g.name, len(results), query)
	return results
}

// StreamLinks scrapes the episode pages behind a series URL. Without an
// audio track preference both the subbed and dubbed pages are scraped
// concurrently.
func (g *GogoAnime) StreamLinks(ctx context.Context, pageURL string, sel EpisodeSelector) ([]models.StreamLink, error) {
	if sel.Episode == 0 {
		return nil, fmt.Errorf("%s needs an episode number", g.name)
	}

	slug := g.slugFromURL(pageURL)
	if slug == "" {
		return nil, fmt.Errorf("%s could not derive a slug from %s", g.name, pageURL)
	}

	tracks := []models.AudioTrack{models.AudioTrackSub, models.AudioTrackDub}
	if sel.AudioTrack != "" {
		tracks = []models.AudioTrack{sel.AudioTrack}
	}

	var (
		mu    sync.Mutex
		links []models.StreamLink
		wg    conc.WaitGroup
	)
	for _, track := range tracks {
		track := track
		wg.Go(func() {
			episodeURL := g.episodeURL(slug, sel.Episode, track)
			found, err := g.extractFromPage(ctx, episodeURL, track)
			if err != nil {
				log.Printf("[scrapers] %s %s extract failed for %s: %v", g.name, track, episodeURL, err)
				return
			}
			mu.Lock()
			links = append(links, found...)
			mu.Unlock()
		})
	}
	wg.Wait()

	log.Printf("[scrapers] %s found %d links for %s episode %d", g.name, len(links), slug, sel.Episode)
	return links, nil
}

func (g *GogoAnime) slugFromURL(seriesURL string) string {
	var slug string
	switch {
	case strings.Contains(seriesURL, "/series/"):
		slug = strings.SplitN(strings.SplitN(seriesURL, "/series/", 2)[1], "/", 2)[0]
	case strings.Contains(seriesURL, "/category/"):
		slug = strings.SplitN(strings.SplitN(seriesURL, "/category/", 2)[1], "/", 2)[0]
	default:
		parts := strings.FieldsFunc(seriesURL, func(r rune) bool { return r == '/' })
		if len(parts) > 0 {
			slug = gogoEpisodeSuffix.ReplaceAllString(parts[len(parts)-1], "")
		}
	}
	return gogoTrackSuffix.ReplaceAllString(slug, "")
}

func (g *GogoAnime) episodeURL(slug string, episode int, track models.AudioTrack) string {
	suffix := "english-subbed"
	if track == models.AudioTrackDub {
		suffix = "english-dubbed"
	}
	return fmt.Sprintf("%s/%s-episode-%d-%s", g.baseURL, slug, episode, suffix)
}

func (g *GogoAnime) extractFromPage(ctx context.Context, pageURL string, track models.AudioTrack) ([]models.StreamLink, error) {
	doc, err := g.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Referer": g.baseURL,
		"Origin":  g.baseURL,
	}

	var links []models.StreamLink

	// Newer markup: encrypted player links resolved by the site's player
	// endpoint.
	doc.Find(".player-type-link").Each(func(_ int, sel *goquery.Selection) {
		serverType := sel.AttrOr("data-type", "")
		encrypted := sel.AttrOr("data-encrypted-url1", "")
		if serverType == "" || encrypted == "" {
			return
		}
		serverName := strings.TrimSpace(sel.Text())
		if serverName == "" {
			serverName = "Unknown Server"
		}
		params := url.Values{}
		params.Set(serverType, encrypted)
		if v := sel.AttrOr("data-encrypted-url2", ""); v != "" {
			params.Set("url2", v)
		}
		if v := sel.AttrOr("data-encrypted-url3", ""); v != "" {
			params.Set("url3", v)
		}
		ref := sel.AttrOr("data-ref", "")
		if ref == "" {
			ref = g.baseURL
		}
		params.Set("ref", ref)
		params.Set("feature_image", pageURL)
		params.Set("user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

		links = append(links, models.StreamLink{
			URL:        gogoPlayerEndpoint + "?" + params.Encode(),
			Quality:    serverName,
			IsM3U8:     false,
			Provider:   g.name,
			AudioTrack: track,
			Headers:    headers,
		})
	})

	// Older markup: server list with data-video attributes.
	if len(links) == 0 {
		doc.Find(".anime_muti_link ul li a").Each(func(_ int, sel *goquery.Selection) {
			dataVideo := sel.AttrOr("data-video", "")
			if dataVideo == "" {
				return
			}
			if strings.HasPrefix(dataVideo, "//") {
				dataVideo = "https:" + dataVideo
			}
			serverName := strings.TrimSpace(strings.ReplaceAll(sel.Text(), "Choose this server", ""))
			if serverName == "" {
				serverName = "Unknown Server"
			}
			links = append(links, models.StreamLink{
				URL:        dataVideo,
				Quality:    serverName,
				IsM3U8:     strings.Contains(dataVideo, ".m3u8"),
				Provider:   g.name,
				AudioTrack: track,
				Headers:    headers,
			})
		})
	}

	// Last resort: a bare player iframe.
	if len(links) == 0 {
		if src := doc.Find("#player iframe, .player-embed iframe, .video-player iframe").AttrOr("src", ""); src != "" {
			links = append(links, models.StreamLink{
				URL:        src,
				Quality:    "Main Server",
				IsM3U8:     strings.Contains(src, ".m3u8"),
				Provider:   g.name,
				AudioTrack: track,
				Headers:    headers,
			})
		}
	}

	return links, nil
}

func (g *GogoAnime) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, pageURL)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}
