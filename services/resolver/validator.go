package resolver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"streamvault/config"
	"streamvault/models"
)

// probeBodyLimit bounds how much of a page the content probe reads. Error
// pages announce themselves well within the first 10KB.
const probeBodyLimit = 10 * 1024

const probeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// deadLinkPhrases are the error banners upstream players serve with an
// HTTP 200. Matching is case-insensitive.
var deadLinkPhrases = []string{
	"video not found",
	"404 not found",
	"file was deleted",
	"no longer available",
	"episode not found",
	"check back another time",
}

var errRateLimited = errors.New("probe rate limited")

// Validator decides whether a candidate stream link is actually playable.
// Probes against rate-sensitive domains go through the admission
// controller first.
type Validator struct {
	admission *Admission
	client    *http.Client
	delay     time.Duration
	attempts  int
}

func NewValidator(cfg config.ValidationSettings, admission *Admission) *Validator {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Validator{
		admission: admission,
		client:    &http.Client{Timeout: cfg.ProbeTimeout()},
		delay:     cfg.RetryDelay(),
		attempts:  attempts,
	}
}

// SetHTTPClient overrides the probe client, used by tests.
func (v *Validator) SetHTTPClient(c *http.Client) { v.client = c }

// Validate reports whether the link is playable. Any failure mode other
// than rate limiting counts as unplayable; rate limiting triggers a
// cooldown and a bounded retry.
func (v *Validator) Validate(ctx context.Context, link models.StreamLink) bool {
	host := hostOf(link.URL)
	if host == "" {
		return false
	}

	if err := v.admission.Acquire(ctx, host); err != nil {
		if errors.Is(err, ErrCoolingDown) {
			log.Printf("[resolver] skipping probe for %s: %s is cooling down", link.URL, host)
		} else {
			log.Printf("[resolver] admission for %s abandoned: %v", host, err)
		}
		return false
	}
	defer v.admission.Release(host)

	var valid bool
	err := retry.Do(
		func() error {
			ok, err := v.probe(ctx, link)
			if err != nil {
				return err
			}
			valid = ok
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(v.attempts)),
		retry.Delay(v.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errRateLimited) }),
	)
	if err != nil {
		log.Printf("[resolver] probe for %s gave up: %v", link.URL, err)
		return false
	}
	return valid
}

// probe runs the two-stage check: a HEAD existence probe, then a partial
// GET scanned for dead-link phrases. A 2xx HEAD on a non-HTML resource is
// conclusive on its own; HTML pages report errors in the body, so they
// always get the content probe.
func (v *Validator) probe(ctx context.Context, link models.StreamLink) (bool, error) {
	resp, err := v.do(ctx, http.MethodHead, link)
	if err == nil {
		status := resp.StatusCode
		contentType := resp.Header.Get("Content-Type")
		resp.Body.Close()

		switch {
		case status == http.StatusTooManyRequests:
			v.admission.ReportRateLimited(hostOf(link.URL))
			return false, errRateLimited
		case status == http.StatusNotFound || status == http.StatusGone:
			return false, nil
		case status >= 200 && status < 300 && !strings.Contains(contentType, "text/html"):
			return true, nil
		}
	}

	return v.contentProbe(ctx, link)
}

func (v *Validator) contentProbe(ctx context.Context, link models.StreamLink) (bool, error) {
	resp, err := v.do(ctx, http.MethodGet, link)
	if err != nil {
		log.Printf("[resolver] content probe for %s failed: %v", link.URL, err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		v.admission.ReportRateLimited(hostOf(link.URL))
		return false, errRateLimited
	}
	if resp.StatusCode >= 400 {
		return false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))
	if err != nil {
		log.Printf("[resolver] content probe read for %s failed: %v", link.URL, err)
		return false, nil
	}

	haystack := strings.ToLower(string(body))
	for _, phrase := range deadLinkPhrases {
		if strings.Contains(haystack, phrase) {
			return false, nil
		}
	}
	return true, nil
}

func (v *Validator) do(ctx context.Context, method string, link models.StreamLink) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, link.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", probeUserAgent)
	for k, val := range link.Headers {
		req.Header.Set(k, val)
	}
	return v.client.Do(req)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
