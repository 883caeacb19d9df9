// Package infobus is a small client for the infobus.eu timetable search.
//
// The site expects a browser-like session: a PHPSESSID_cf cookie and a
// short-lived bearer token that is embedded in the search page. The client
// scrapes both from the search page and reuses them until the token is
// about to expire or the API rejects it.
package infobus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edgard/infobusbot/internal/config"
)

const sessionCookie = "PHPSESSID_cf"

var (
	// ErrAuthMissing is returned when the search page did not yield a token or session cookie.
	ErrAuthMissing = errors.New("infobus: auth is missing (token or PHPSESSID_cf)")

	// ErrRetriesExhausted wraps the last transport error once every attempt failed.
	ErrRetriesExhausted = errors.New("infobus: request failed after retries")
)

var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`var\s+token\s*=\s*'([^']*)'`),
	regexp.MustCompile(`var\s+token\s*=\s*"([^"]*)"`),
}

// HTTPError is returned for unexpected HTTP status codes.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("infobus: %s returned status %d", e.URL, e.StatusCode)
}

// Client talks to infobus.eu. It is safe for concurrent use. Searches run in
// parallel; only session refreshes are serialized.
type Client struct {
	baseURL      string
	userAgent    string
	timeout      time.Duration
	maxRetries   int
	backoffBase  time.Duration
	clockSkew    time.Duration
	screenWidth  int
	screenHeight int

	transport http.RoundTripper
	api       *http.Client
	log       *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	sessionID string
	token     string
	tokenExp  time.Time
}

// NewClient creates a client from configuration.
func NewClient(cfg config.InfobusConfig, log *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("infobus base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid infobus base URL: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		timeout:      cfg.Timeout,
		maxRetries:   maxRetries,
		backoffBase:  cfg.BackoffBase,
		clockSkew:    cfg.ClockSkew,
		screenWidth:  cfg.ScreenWidth,
		screenHeight: cfg.ScreenHeight,
		transport:    http.DefaultTransport,
		log:          log.With("component", "infobus_client"),
		now:          time.Now,
		sleep:        sleepContext,
	}
	c.api = &http.Client{Transport: c.transport, Timeout: c.timeout}

	c.log.Info("Infobus client initialized", "base_url", c.baseURL, "max_retries", c.maxRetries)
	return c, nil
}

// RefreshSession loads the search page for the trip with freshly cleared
// cookies and stores the session cookie and token found there.
func (c *Client) RefreshSession(ctx context.Context, cityFromID, cityToID, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, cityFromID, cityToID, date)
}

func (c *Client) refreshLocked(ctx context.Context, cityFromID, cityToID, date string) error {
	pageURL := fmt.Sprintf("%s/en/%s/%s/%s?cookies_cleared=1", c.baseURL, cityFromID, cityToID, date)

	// A new jar per refresh mirrors the cookies_cleared flow of the site.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("infobus: failed to create cookie jar: %w", err)
	}
	page := &http.Client{Transport: c.transport, Timeout: c.timeout, Jar: jar}

	resp, err := c.doWithRetries(ctx, page, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		c.setUserAgent(req)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("infobus: failed to read search page: %w", err)
	}

	c.sessionID = findCookie(jar, resp.Request.URL, sessionCookie)
	c.token = extractToken(string(body))
	c.tokenExp = time.Time{}
	if exp, ok := tokenExpiry(c.token); ok {
		c.tokenExp = exp
	}

	c.log.DebugContext(ctx, "Refreshed infobus session",
		"status", resp.StatusCode,
		"has_session", c.sessionID != "",
		"has_token", c.token != "",
		"token_exp", c.tokenExp)
	return nil
}

// GetRoutes posts a get_routes search for q and decodes the JSON answer.
// The session is refreshed first when it is missing or about to expire,
// and once more if the API answers 401 or 403.
func (c *Client) GetRoutes(ctx context.Context, q RouteQuery) (*RoutesResponse, error) {
	sess, err := c.session(ctx, q, "")
	if err != nil {
		return nil, err
	}

	resp, err := c.postRoutes(ctx, q, sess)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drain(resp)
		c.log.InfoContext(ctx, "Infobus rejected auth, refreshing session", "status", resp.StatusCode)
		if sess, err = c.session(ctx, q, sess.token); err != nil {
			return nil, err
		}
		if resp, err = c.postRoutes(ctx, q, sess); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: resp.Request.URL.String(), Body: string(snippet)}
	}

	var out RoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("infobus: failed to decode routes: %w", err)
	}

	c.log.DebugContext(ctx, "Fetched routes",
		"from", q.CityFromID, "to", q.CityToID, "date", q.Date,
		"status", bool(out.Status), "routes", len(out.Routes))
	return &out, nil
}

type sessionAuth struct {
	id    string
	token string
}

// session returns the auth to use for q. It refreshes first when the stored
// auth is stale, or when it still holds the rejected token. A concurrent
// caller that already replaced a rejected token is not refreshed again.
func (c *Client) session(ctx context.Context, q RouteQuery, rejected string) (sessionAuth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.authFreshLocked() || (rejected != "" && c.token == rejected) {
		if err := c.refreshLocked(ctx, q.CityFromID, q.CityToID, q.Date); err != nil {
			return sessionAuth{}, err
		}
	}
	if c.token == "" || c.sessionID == "" {
		return sessionAuth{}, ErrAuthMissing
	}
	return sessionAuth{id: c.sessionID, token: c.token}, nil
}

func (c *Client) postRoutes(ctx context.Context, q RouteQuery, sess sessionAuth) (*http.Response, error) {
	form := url.Values{
		"transport_type":   {"all"},
		"city_from_id":     {q.CityFromID},
		"city_to_id":       {q.CityToID},
		"dateFrom":         {q.Date},
		"dateTo":           {""},
		"Function":         {"get_routes"},
		"period":           {"0"},
		"route_id":         {""},
		"filter_time_from": {""},
		"from_name":        {q.FromName},
		"to_name":          {q.ToName},
		"screen_width":     {strconv.Itoa(c.screenWidth)},
		"screen_height":    {strconv.Itoa(c.screenHeight)},
		"ws":               {"0"},
	}
	encoded := form.Encode()
	scriptURL := c.baseURL + "/en/script"

	return c.doWithRetries(ctx, c.api, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, scriptURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		c.setUserAgent(req)
		req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
		req.Header.Set("Authorization", "Bearer "+sess.token)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Header.Set("Cookie", fmt.Sprintf(
			"cf_cookies_cleared=1; %s=%s; lang=en; search-items=bus%%7C%s%%7C%s",
			sessionCookie, sess.id, q.CityFromID, q.CityToID))
		req.Header.Set("Origin", c.baseURL)
		req.Header.Set("Referer", fmt.Sprintf("%s/%s/%s/%s", c.baseURL, q.CityFromID, q.CityToID, q.Date))
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
		return req, nil
	})
}

// doWithRetries retries transport failures with exponential backoff.
// HTTP error statuses are returned to the caller as responses.
func (c *Client) doWithRetries(ctx context.Context, hc *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("infobus: failed to build request: %w", err)
		}

		resp, err := hc.Do(req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}
		wait := c.backoffBase * time.Duration(1<<attempt)
		c.log.WarnContext(ctx, "Infobus request failed, retrying",
			"url", req.URL.String(), "attempt", attempt+1, "max_retries", c.maxRetries, "wait", wait, "error", err)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w (%d attempts): %w", ErrRetriesExhausted, c.maxRetries, lastErr)
}

func (c *Client) authFreshLocked() bool {
	if c.token == "" || c.sessionID == "" || c.tokenExp.IsZero() {
		return false
	}
	return c.now().Add(c.clockSkew).Before(c.tokenExp)
}

func (c *Client) setUserAgent(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func findCookie(jar http.CookieJar, u *url.URL, name string) string {
	for _, ck := range jar.Cookies(u) {
		if strings.EqualFold(ck.Name, name) {
			return ck.Value
		}
	}
	return ""
}

func extractToken(html string) string {
	for _, re := range tokenPatterns {
		if m := re.FindStringSubmatch(html); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// tokenExpiry reads the exp claim without verifying the signature.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" || strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
