package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const jikanBaseURL = "https://api.jikan.moe/v4"

// jikanClient talks to the unofficial MyAnimeList API. Jikan enforces a
// hard request-per-second limit, so calls are spaced out client-side.
type jikanClient struct {
	baseURL string
	httpc   *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newJikanClient(httpc *http.Client) *jikanClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &jikanClient{
		baseURL:     jikanBaseURL,
		httpc:       httpc,
		minInterval: 400 * time.Millisecond, // Jikan allows ~3 req/s
	}
}

func (c *jikanClient) doGET(ctx context.Context, endpoint string, v any) error {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		c.throttleMu.Lock()
		since := time.Since(c.lastRequest)
		if since < c.minInterval {
			time.Sleep(c.minInterval - since)
		}
		c.lastRequest = time.Now()
		c.throttleMu.Unlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[jikan] http error (attempt %d/3): %v", attempt+1, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			log.Printf("[jikan] rate limited or server error (attempt %d/3): status %d", attempt+1, resp.StatusCode)
			lastErr = fmt.Errorf("jikan request failed: %s", resp.Status)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return ErrNotFound
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("jikan request failed: %s", resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return err
		}
		return nil
	}

	return lastErr
}

type jikanAnime struct {
	MALID        int    `json:"mal_id"`
	Title        string `json:"title"`
	TitleEnglish string `json:"title_english"`
}

func (a jikanAnime) displayTitle() string {
	if t := strings.TrimSpace(a.TitleEnglish); t != "" {
		return t
	}
	return strings.TrimSpace(a.Title)
}

type jikanAnimeResponse struct {
	Data jikanAnime `json:"data"`
}

// animeDetails fetches one anime by MAL id.
func (c *jikanClient) animeDetails(ctx context.Context, malID int) (jikanAnime, error) {
	var payload jikanAnimeResponse
	err := c.doGET(ctx, fmt.Sprintf("%s/anime/%d", c.baseURL, malID), &payload)
	return payload.Data, err
}

type jikanSearchResponse struct {
	Data []jikanAnime `json:"data"`
}

// searchFirst returns the first anime search hit, or an error when nothing
// matched.
func (c *jikanClient) searchFirst(ctx context.Context, query string) (jikanAnime, error) {
	endpoint := fmt.Sprintf("%s/anime?q=%s&limit=1", c.baseURL, url.QueryEscape(query))
	var payload jikanSearchResponse
	if err := c.doGET(ctx, endpoint, &payload); err != nil {
		return jikanAnime{}, err
	}
	if len(payload.Data) == 0 {
		return jikanAnime{}, errors.New("no anime matched")
	}
	return payload.Data[0], nil
}
