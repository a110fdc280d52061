package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthHandler(t *testing.T) {
	t.Run("captures the code", func(t *testing.T) {
		h := NewOAuthHandler("/callback", "xyz")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=abc", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Account connected")

		result := <-h.Result()
		require.NoError(t, result.Error())
		assert.Equal(t, "abc", result.Code)
	})

	t.Run("rejects a mismatched state", func(t *testing.T) {
		h := NewOAuthHandler("", "xyz")
		assert.Equal(t, []string{"/callback"}, h.Routes())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=other&code=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		result := <-h.Result()
		assert.True(t, errors.Is(result.Error(), shared.ErrStateMismatch))
		assert.Empty(t, result.Code)
	})

	t.Run("reports a refusal", func(t *testing.T) {
		h := NewOAuthHandler("/cb", "xyz")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cb?state=xyz&error=access_denied", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		err := (<-h.Result()).Error()
		assert.True(t, errors.Is(err, shared.ErrAuth))
		assert.Contains(t, err.Error(), "access_denied")
		assert.NotEmpty(t, shared.Hints(err))
	})

	t.Run("processes one callback", func(t *testing.T) {
		h := NewOAuthHandler("/callback", "xyz")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=one", nil))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=two", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		result := <-h.Result()
		assert.Equal(t, "one", result.Code)
		_, open := <-h.Result()
		assert.False(t, open)
	})

	t.Run("rejects other methods", func(t *testing.T) {
		h := NewOAuthHandler("/callback", "xyz")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/callback?state=xyz&code=abc", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestBasicRouter(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	r := NewBasicRouter()
	r.Use(tag("outer"), tag("inner"), RequestLogger(logger))
	r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping?code=secret", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Contains(t, buf.String(), "status=418")
	assert.NotContains(t, buf.String(), "secret")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewBrowserAuthorizer(t *testing.T) {
	cfg := shared.ServerConfig{Host: "localhost", Port: 3000}

	tc := []struct {
		name     string
		redirect string
		port     int
		path     string
	}{
		{"from redirect", "http://127.0.0.1:8888/spotify/callback", 8888, "/spotify/callback"},
		{"port from config", "http://localhost/cb", 3000, "/cb"},
		{"defaults", "", 3000, "/callback"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewBrowserAuthorizer(tt.redirect, cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.port, a.Port)
			assert.Equal(t, tt.path, a.Path)
			assert.Equal(t, "localhost", a.Host)
		})
	}

	_, err := NewBrowserAuthorizer("http://127.0.0.1:abc/cb", cfg, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidArgument))
}

// callbackOpener simulates the browser following the provider's redirect.
func callbackOpener(t *testing.T, a *BrowserAuthorizer, query string) func(string) error {
	return func(string) error {
		go func() {
			resp, err := http.Get(fmt.Sprintf("http://%s%s?%s", a.Addr(), a.Path, query))
			if err != nil {
				t.Errorf("callback request: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func newTestAuthorizer(t *testing.T) *BrowserAuthorizer {
	t.Helper()
	a, err := NewBrowserAuthorizer("http://127.0.0.1:0/callback", shared.ServerConfig{Host: "127.0.0.1"}, log.New(&bytes.Buffer{}))
	require.NoError(t, err)
	return a
}

func TestBrowserAuthorizer(t *testing.T) {
	t.Run("returns the delivered code", func(t *testing.T) {
		a := newTestAuthorizer(t)
		a.Open = callbackOpener(t, a, "state=s1&code=the-code")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		code, err := a.Authorize(ctx, "https://accounts.test/authorize", "s1")
		require.NoError(t, err)
		assert.Equal(t, "the-code", code)
		assert.Empty(t, a.Addr())
	})

	t.Run("state mismatch", func(t *testing.T) {
		a := newTestAuthorizer(t)
		a.Open = callbackOpener(t, a, "state=forged&code=the-code")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := a.Authorize(ctx, "https://accounts.test/authorize", "s1")
		assert.True(t, errors.Is(err, shared.ErrStateMismatch))
	})

	t.Run("prints the url when no browser opens", func(t *testing.T) {
		a := newTestAuthorizer(t)
		var out bytes.Buffer
		a.Out = &out
		a.Open = func(string) error { return errors.New("no display") }

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := a.Authorize(ctx, "https://accounts.test/authorize?x=1", "s1")
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.True(t, strings.Contains(out.String(), "https://accounts.test/authorize?x=1"))
	})

	t.Run("port in use", func(t *testing.T) {
		busy := httptest.NewServer(http.NotFoundHandler())
		defer busy.Close()

		a := newTestAuthorizer(t)
		_, port, _ := strings.Cut(strings.TrimPrefix(busy.URL, "http://"), ":")
		fmt.Sscanf(port, "%d", &a.Port)

		_, err := a.Authorize(context.Background(), "https://accounts.test/authorize", "s1")
		require.Error(t, err)
		assert.NotEmpty(t, shared.Hints(err))
	})
}
