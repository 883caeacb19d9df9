package infobus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/infobusbot/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

type fakeSite struct {
	t     *testing.T
	token string
	// tokenFor, if set, picks the page token for the n-th (1-based) page load.
	tokenFor   func(n int32) string
	pageHits   atomic.Int32
	scriptHits atomic.Int32
	// scriptStatus returns the status for the n-th (1-based) script call.
	scriptStatus func(n int32) int
	// hold, if set, runs before the script answers.
	hold func()
	body string
}

func (s *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /en/{from}/{to}/{date}", func(w http.ResponseWriter, r *http.Request) {
		n := s.pageHits.Add(1)
		assert.Equal(s.t, "1", r.URL.Query().Get("cookies_cleared"))
		assert.Equal(s.t, "test-agent", r.Header.Get("User-Agent"))
		http.SetCookie(w, &http.Cookie{Name: "phpsessid_cf", Value: fmt.Sprintf("sess%d", n), Path: "/"})
		token := s.token
		if s.tokenFor != nil {
			token = s.tokenFor(n)
		}
		fmt.Fprintf(w, "<html><script>var token = '%s';</script></html>", token)
	})
	mux.HandleFunc("POST /en/script", func(w http.ResponseWriter, r *http.Request) {
		n := s.scriptHits.Add(1)
		assert.NoError(s.t, r.ParseForm())
		assert.Equal(s.t, "get_routes", r.PostForm.Get("Function"))
		assert.Equal(s.t, "78", r.PostForm.Get("city_from_id"))
		assert.Equal(s.t, "2", r.PostForm.Get("city_to_id"))
		assert.Equal(s.t, "01.09.2025", r.PostForm.Get("dateFrom"))
		assert.Equal(s.t, "Vilnius", r.PostForm.Get("from_name"))
		assert.Equal(s.t, "2560", r.PostForm.Get("screen_width"))
		assert.Equal(s.t, "1305", r.PostForm.Get("screen_height"))
		assert.Equal(s.t, "Bearer "+s.token, r.Header.Get("Authorization"))
		assert.Equal(s.t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Contains(s.t, r.Header.Get("Cookie"), fmt.Sprintf("PHPSESSID_cf=sess%d", s.pageHits.Load()))
		assert.Contains(s.t, r.Header.Get("Cookie"), "search-items=bus%7C78%7C2")

		if s.hold != nil {
			s.hold()
		}
		status := http.StatusOK
		if s.scriptStatus != nil {
			status = s.scriptStatus(n)
		}
		w.WriteHeader(status)
		io.WriteString(w, s.body)
	})
	return mux
}

func newTestClient(t *testing.T, site *fakeSite) *Client {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(config.InfobusConfig{
		BaseURL:      srv.URL + "/",
		UserAgent:    "test-agent",
		Timeout:      5 * time.Second,
		MaxRetries:   4,
		BackoffBase:  time.Second,
		ClockSkew:    time.Minute,
		ScreenWidth:  2560,
		ScreenHeight: 1305,
	}, testLogger)
	require.NoError(t, err)
	return c
}

var testQuery = RouteQuery{CityFromID: "78", CityToID: "2", FromName: "Vilnius", ToName: "Minsk", Date: "01.09.2025"}

const routesBody = `{"status":true,"routes":[
	{"ClearDepTime":"2130","ClearArrTime":"0200","price":25,"rating":4.5},
	{"ClearDepTime":"0815","ClearArrTime":"1240","price":"19.90","rating":null}
]}`

func TestGetRoutesReusesFreshSession(t *testing.T) {
	site := &fakeSite{t: t, body: routesBody}
	site.token = signedToken(t, time.Now().Add(time.Hour))
	c := newTestClient(t, site)

	resp, err := c.GetRoutes(context.Background(), testQuery)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Len(t, resp.Routes, 2)

	_, err = c.GetRoutes(context.Background(), testQuery)
	require.NoError(t, err)

	assert.Equal(t, int32(1), site.pageHits.Load())
	assert.Equal(t, int32(2), site.scriptHits.Load())
}

func TestGetRoutesRefreshesExpiringToken(t *testing.T) {
	site := &fakeSite{t: t, body: routesBody}
	// inside the clock skew window, so it is never considered fresh
	site.token = signedToken(t, time.Now().Add(30*time.Second))
	c := newTestClient(t, site)

	for range 2 {
		_, err := c.GetRoutes(context.Background(), testQuery)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), site.pageHits.Load())
}

func TestGetRoutesRetriesOnceAfterUnauthorized(t *testing.T) {
	site := &fakeSite{t: t, body: routesBody}
	site.token = signedToken(t, time.Now().Add(time.Hour))
	site.scriptStatus = func(n int32) int {
		if n == 1 {
			return http.StatusForbidden
		}
		return http.StatusOK
	}
	c := newTestClient(t, site)

	resp, err := c.GetRoutes(context.Background(), testQuery)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(2), site.pageHits.Load())
	assert.Equal(t, int32(2), site.scriptHits.Load())
}

func TestGetRoutesRunsConcurrently(t *testing.T) {
	const callers = 4

	var inFlight atomic.Int32
	release := make(chan struct{})
	site := &fakeSite{t: t, body: routesBody}
	site.token = signedToken(t, time.Now().Add(time.Hour))
	site.hold = func() {
		if inFlight.Add(1) == callers {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(3 * time.Second):
		}
	}
	c := newTestClient(t, site)

	errs := make(chan error, callers)
	for range callers {
		go func() {
			_, err := c.GetRoutes(context.Background(), testQuery)
			errs <- err
		}()
	}
	for range callers {
		require.NoError(t, <-errs)
	}

	select {
	case <-release:
	default:
		t.Fatal("searches did not overlap")
	}
	assert.Equal(t, int32(1), site.pageHits.Load())
}

func TestSessionRefreshesRejectedTokenOnce(t *testing.T) {
	first := signedToken(t, time.Now().Add(time.Hour))
	second := signedToken(t, time.Now().Add(2*time.Hour))
	site := &fakeSite{t: t, body: routesBody}
	site.tokenFor = func(n int32) string {
		if n == 1 {
			return first
		}
		return second
	}
	c := newTestClient(t, site)

	sess, err := c.session(context.Background(), testQuery, "")
	require.NoError(t, err)
	assert.Equal(t, first, sess.token)

	fresh, err := c.session(context.Background(), testQuery, sess.token)
	require.NoError(t, err)
	assert.Equal(t, int32(2), site.pageHits.Load())
	assert.Equal(t, second, fresh.token)

	// a second caller rejected with the old token reuses the replacement
	again, err := c.session(context.Background(), testQuery, sess.token)
	require.NoError(t, err)
	assert.Equal(t, int32(2), site.pageHits.Load())
	assert.Equal(t, fresh, again)
}

func TestGetRoutesHTTPError(t *testing.T) {
	site := &fakeSite{t: t, body: "boom"}
	site.token = signedToken(t, time.Now().Add(time.Hour))
	site.scriptStatus = func(int32) int { return http.StatusInternalServerError }
	c := newTestClient(t, site)

	_, err := c.GetRoutes(context.Background(), testQuery)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "boom", httpErr.Body)
}

func TestGetRoutesAuthMissing(t *testing.T) {
	site := &fakeSite{t: t, body: routesBody, token: "  "}
	c := newTestClient(t, site)

	_, err := c.GetRoutes(context.Background(), testQuery)
	assert.ErrorIs(t, err, ErrAuthMissing)
	assert.Equal(t, int32(0), site.scriptHits.Load())
}

type failingTransport struct {
	calls atomic.Int32
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestRetriesWithExponentialBackoff(t *testing.T) {
	c, err := NewClient(config.InfobusConfig{
		BaseURL:     "http://infobus.invalid",
		MaxRetries:  4,
		BackoffBase: time.Second,
	}, testLogger)
	require.NoError(t, err)

	ft := &failingTransport{}
	c.transport = ft
	c.api = &http.Client{Transport: ft}
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	err = c.RefreshSession(context.Background(), "78", "2", "01.09.2025")
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(4), ft.calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	c, err := NewClient(config.InfobusConfig{BaseURL: "http://infobus.invalid", MaxRetries: 3}, testLogger)
	require.NoError(t, err)

	ft := &failingTransport{}
	c.transport = ft

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err = c.RefreshSession(ctx, "78", "2", "01.09.2025")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), ft.calls.Load())
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		html, want string
	}{
		{`var token = 'abc.def.ghi';`, "abc.def.ghi"},
		{`var  token="xyz"`, "xyz"},
		{`var token = '   ';`, ""},
		{`let token = 'nope'`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractToken(tt.html), tt.html)
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Unix(1900000000, 0)
	got, ok := tokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, ok = tokenExpiry(noExp)
	assert.False(t, ok)

	_, ok = tokenExpiry("not-a-jwt")
	assert.False(t, ok)
	_, ok = tokenExpiry("a.b.c")
	assert.False(t, ok)
	_, ok = tokenExpiry("")
	assert.False(t, ok)
}
