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

const tmdbBaseURL = "https://api.themoviedb.org/3"

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(apiKey, language string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		apiKey:      strings.TrimSpace(apiKey),
		language:    language,
		baseURL:     tmdbBaseURL,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond, // TMDB has generous rate limits
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// doGET performs an HTTP GET with rate limiting and retry with exponential backoff
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, v any) error {
	var lastErr error
	backoff := 300 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		// Rate limiting
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
			log.Printf("[tmdb] http error (attempt %d/3): %v", attempt+1, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		// Handle rate limiting and server errors
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			log.Printf("[tmdb] rate limited or server error (attempt %d/3): status %d", attempt+1, resp.StatusCode)
			lastErr = fmt.Errorf("tmdb request failed: %s", resp.Status)
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
			return fmt.Errorf("tmdb request failed: %s", resp.Status)
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

func (c *tmdbClient) endpoint(segments string, extra url.Values) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if lang := strings.TrimSpace(c.language); lang != "" {
		q.Set("language", lang)
	} else {
		q.Set("language", "en-US")
	}
	for k, vals := range extra {
		for _, v := range vals {
			q.Add(k, v)
		}
	}
	return c.baseURL + "/" + segments + "?" + q.Encode()
}

type tmdbDetailsResponse struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Name   string `json:"name"`
	IMDBID string `json:"imdb_id"`
}

// details fetches the display title and, for movies, the IMDB id in the
// same call. apiMediaType is "movie" or "tv".
func (c *tmdbClient) details(ctx context.Context, apiMediaType string, tmdbID int) (tmdbDetailsResponse, error) {
	var payload tmdbDetailsResponse
	if !c.isConfigured() {
		return payload, errors.New("tmdb api key not configured")
	}
	err := c.doGET(ctx, c.endpoint(fmt.Sprintf("%s/%d", apiMediaType, tmdbID), nil), &payload)
	return payload, err
}

type tmdbExternalIDsResponse struct {
	IMDBID string `json:"imdb_id"`
}

// externalIDs retrieves the IMDB id for a TMDB movie or TV show.
func (c *tmdbClient) externalIDs(ctx context.Context, apiMediaType string, tmdbID int) (string, error) {
	if !c.isConfigured() {
		return "", errors.New("tmdb api key not configured")
	}
	var payload tmdbExternalIDsResponse
	if err := c.doGET(ctx, c.endpoint(fmt.Sprintf("%s/%d/external_ids", apiMediaType, tmdbID), nil), &payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.IMDBID), nil
}

type tmdbSearchResponse struct {
	Results []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Name  string `json:"name"`
	} `json:"results"`
}

// searchFirst returns the first search hit's TMDB id, or 0 when nothing
// matched.
func (c *tmdbClient) searchFirst(ctx context.Context, apiMediaType, query string) (int, error) {
	if !c.isConfigured() {
		return 0, errors.New("tmdb api key not configured")
	}
	extra := url.Values{}
	extra.Set("query", query)
	var payload tmdbSearchResponse
	if err := c.doGET(ctx, c.endpoint("search/"+apiMediaType, extra), &payload); err != nil {
		return 0, err
	}
	if len(payload.Results) == 0 {
		return 0, nil
	}
	return int(payload.Results[0].ID), nil
}
