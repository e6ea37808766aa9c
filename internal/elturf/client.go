// Package elturf talks to the racetrack website: session login, the
// program/result meeting APIs and the HTML result detail pages.
package elturf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"hipica/internal"
	"hipica/internal/config"
)

const (
	maxAttempts   = 5
	sessionCookie = "PHPSESSID"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var ErrUnauthorized = errors.New("elturf: unauthorized")

// StatusError is returned for non-retryable (or exhausted) HTTP failures.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elturf status=%d url=%s body=%s", e.Status, e.URL, e.Body)
}

type Client struct {
	cfg        config.Config
	base       *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    func(attempt int) time.Duration
}

func NewClient(cfg config.Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ElturfBaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse ELTURF_BASE_URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	rps := cfg.ElturfRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	timeout := time.Duration(cfg.ElturfTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		base:       base,
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		backoff: func(attempt int) time.Duration {
			return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
		},
	}
	if err := c.loadCookies(); err != nil {
		log.Warn().Err(err).Str("path", cfg.CookiesPath).Msg("ignoring cached cookies")
	}
	return c, nil
}

// ProgramMeetings lists the program meetings published for date (YYYY-MM-DD).
func (c *Client) ProgramMeetings(ctx context.Context, date string) ([]internal.Meeting, error) {
	return c.meetings(ctx, "api/elturfhome/programas/reuniones/fecha/"+date)
}

// ResultMeetings lists the meetings with results for date.
func (c *Client) ResultMeetings(ctx context.Context, date string) ([]internal.Meeting, error) {
	return c.meetings(ctx, "api/elturfhome/resultados/reuniones/fecha/"+date)
}

func (c *Client) meetings(ctx context.Context, endpoint string) ([]internal.Meeting, error) {
	body, err := c.get(ctx, c.resolve(endpoint), "application/json")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Reuniones []map[string]any `json:"reuniones"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode meetings: %w", err)
	}

	out := make([]internal.Meeting, 0, len(payload.Reuniones))
	for _, raw := range payload.Reuniones {
		m, err := toMeeting(raw)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("skipping meeting")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// RaceRunners returns the runners of a race from the program detail API.
func (c *Client) RaceRunners(ctx context.Context, raceID int) ([]internal.Runner, error) {
	body, err := c.get(ctx, c.resolve("api/elturf/programa/"+strconv.Itoa(raceID)), "application/json")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Ejemplares []map[string]any `json:"ejemplares"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode race %d detail: %w", raceID, err)
	}
	out := make([]internal.Runner, 0, len(payload.Ejemplares))
	for _, raw := range payload.Ejemplares {
		if r, ok := toRunner(raw); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ResultPage fetches the HTML results detail page of a race.
func (c *Client) ResultPage(ctx context.Context, raceID int) ([]byte, error) {
	return c.get(ctx, c.ResultPageURL(raceID), "text/html")
}

func (c *Client) ResultPageURL(raceID int) string {
	path := strings.ReplaceAll(c.cfg.ElturfResultPagePath, "{id}", strconv.Itoa(raceID))
	return c.resolve(strings.TrimLeft(path, "/"))
}

func (c *Client) resolve(endpoint string) string {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return c.base.String() + endpoint
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) get(ctx context.Context, target, accept string) ([]byte, error) {
	if !c.hasSession() && c.hasCredentials() {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	relogged := false
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Referer", c.base.String())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if relogged || !c.hasCredentials() {
				return nil, fmt.Errorf("%s: %w", target, ErrUnauthorized)
			}
			log.Warn().Str("url", target).Msg("session expired, logging in again")
			relogged = true
			if err := c.Login(ctx); err != nil {
				return nil, fmt.Errorf("re-login: %w", err)
			}
			continue
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = &StatusError{URL: target, Status: resp.StatusCode}
				if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &StatusError{URL: target, Status: resp.StatusCode, Body: truncate(string(body), 200)}
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("elturf request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// MatchVenue reports whether a meeting belongs to venue, by name or code.
func MatchVenue(m internal.Meeting, venue internal.Venue) bool {
	if strings.EqualFold(strings.TrimSpace(m.VenueCode), venue.Code) {
		return true
	}
	v, ok := internal.LookupVenue(m.VenueName)
	return ok && v.Code == venue.Code
}
