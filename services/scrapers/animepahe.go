package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"streamvault/models"
)

const animePaheUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// paheEpisodePage is one page of the site's release API.
type paheEpisodePage struct {
	Data []struct {
		Episode int    `json:"episode"`
		Session string `json:"session"`
	} `json:"data"`
	LastPage int `json:"last_page"`
}

// AnimePahe drives a headless browser against a Cloudflare-fronted site.
// Plain HTTP requests get challenged, so both search and episode lookup go
// through a stealth page.
type AnimePahe struct {
	name    string
	baseURL string
}

func NewAnimePahe(name, baseURL string) *AnimePahe {
	if name == "" {
		name = "AnimePahe"
	}
	if baseURL == "" {
		baseURL = "https://animepahe.si"
	}
	return &AnimePahe{name: name, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *AnimePahe) Name() string { return a.name }

func (a *AnimePahe) Priority() int { return 10 }

func (a *AnimePahe) Supports(mediaType models.MediaType) bool {
	return mediaType == models.MediaTypeAnime
}

// Search types the title into the site's live search box and collects the
// result anchors. Browser failures are logged and reported as no results.
func (a *AnimePahe) Search(ctx context.Context, query string, _ models.CrossRefIDs) []models.ScraperSearchResult {
	browser, cleanup, err := a.connect(ctx)
	if err != nil {
		log.Printf("[scrapers] %s search for %q failed: %v", a.name, query, err)
		return nil
	}
	defer cleanup()

	var results []models.ScraperSearchResult
	err = rod.Try(func() {
		page := stealth.MustPage(browser)
		defer page.MustClose()
		page.MustSetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: animePaheUserAgent})

		page.Timeout(30 * time.Second).MustNavigate(a.baseURL).MustWaitLoad()

		input := page.Timeout(10 * time.Second).MustElement(".input-search")
		input.MustClick()
		input.MustInput(query)

		page.Timeout(15 * time.Second).MustWait(`() => {
			const wrap = document.querySelector('.search-results-wrap');
			return wrap && wrap.children.length > 0;
		}`)

		for _, el := range page.MustElements(".search-results-wrap a") {
			title := strings.TrimSpace(el.MustText())
			href := ""
			if attr := el.MustAttribute("href"); attr != nil {
				href = *attr
			}
			if title == "" || href == "" {
				continue
			}
			if !strings.HasPrefix(href, "http") {
				href = a.baseURL + href
			}
			results = append(results, models.ScraperSearchResult{Title: title, URL: href})
		}
	})
	if err != nil {
		log.Printf("[scrapers] %s search for %q failed: %v", a.name, query, err)
		return nil
	}
	log.Printf("[scrapers] %s found %d results for %q", a.name, len(results), query)
	return results
}

// StreamLinks walks from an anime page URL to the requested episode's play
// page and collects the resolution menu entries.
func (a *AnimePahe) StreamLinks(ctx context.Context, pageURL string, sel EpisodeSelector) ([]models.StreamLink, error) {
	if sel.Episode == 0 {
		return nil, fmt.Errorf("%s needs an episode number", a.name)
	}

	session := pageURL[strings.LastIndex(pageURL, "/")+1:]
	if session == "" {
		return nil, fmt.Errorf("%s could not extract a session from %s", a.name, pageURL)
	}

	browser, cleanup, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	episodeSession, err := a.findEpisodeSession(browser, session, sel.Episode)
	if err != nil {
		return nil, err
	}
	if episodeSession == "" {
		return nil, fmt.Errorf("%s episode %d not found for session %s", a.name, sel.Episode, session)
	}

	links, err := a.extractPlayLinks(browser, session, episodeSession)
	if err != nil {
		return nil, err
	}
	log.Printf("[scrapers] %s found %d links for episode %d", a.name, len(links), sel.Episode)
	return links, nil
}

func (a *AnimePahe) connect(ctx context.Context) (*rod.Browser, func(), error) {
	controlURL, err := launcher.New().Headless(true).NoSandbox(true).Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("%s launch browser: %w", a.name, err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("%s connect browser: %w", a.name, err)
	}
	cleanup := func() {
		if err := browser.Close(); err != nil {
			log.Printf("[scrapers] %s browser close: %v", a.name, err)
		}
	}
	return browser, cleanup, nil
}

// findEpisodeSession walks the paginated release API until it sees the
// requested episode. A handful of pages covers any realistic season.
func (a *AnimePahe) findEpisodeSession(browser *rod.Browser, session string, episode int) (string, error) {
	var episodeSession string
	err := rod.Try(func() {
		page := stealth.MustPage(browser)
		defer page.MustClose()

		for pageNum := 1; pageNum <= 5; pageNum++ {
			apiURL := fmt.Sprintf("%s/api?m=release&id=%s&sort=episode_asc&page=%d", a.baseURL, session, pageNum)
			page.Timeout(20 * time.Second).MustNavigate(apiURL).MustWaitLoad()

			raw := page.MustEval(`() => document.body.innerText`).Str()
			var ep paheEpisodePage
			if err := json.Unmarshal([]byte(raw), &ep); err != nil || len(ep.Data) == 0 {
				return
			}
			for _, item := range ep.Data {
				if item.Episode == episode {
					episodeSession = item.Session
					return
				}
			}
			if ep.LastPage == pageNum {
				return
			}
		}
	})
	if err != nil {
		return "", fmt.Errorf("%s episode lookup: %w", a.name, err)
	}
	return episodeSession, nil
}

func (a *AnimePahe) extractPlayLinks(browser *rod.Browser, session, episodeSession string) ([]models.StreamLink, error) {
	var links []models.StreamLink
	err := rod.Try(func() {
		page := stealth.MustPage(browser)
		defer page.MustClose()

		playURL := fmt.Sprintf("%s/play/%s/%s", a.baseURL, session, episodeSession)
		page.Timeout(30 * time.Second).MustNavigate(playURL).MustWaitDOMStable()

		if err := rod.Try(func() {
			page.Timeout(5 * time.Second).MustElement("#resolutionMenu > button")
		}); err != nil {
			log.Printf("[scrapers] %s resolution menu never appeared for %s", a.name, playURL)
		}

		for _, btn := range page.MustElements("#resolutionMenu > button") {
			src := ""
			if attr := btn.MustAttribute("data-src"); attr != nil {
				src = *attr
			}
			if src == "" {
				continue
			}
			quality := strings.TrimSpace(btn.MustText())
			if quality == "" {
				quality = "Unknown"
			}
			links = append(links, models.StreamLink{
				URL:      src,
				Quality:  quality,
				IsM3U8:   strings.Contains(src, ".m3u8"),
				Provider: a.name,
				Headers: map[string]string{
					"Referer": "https://kwik.cx/",
					"Origin":  "https://kwik.cx",
				},
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s play page: %w", a.name, err)
	}
	return links, nil
}
