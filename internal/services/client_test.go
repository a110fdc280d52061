package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	resp *Response
	err  error
}

func reply(status int, body string, header ...string) scripted {
	h := http.Header{}
	for i := 0; i+1 < len(header); i += 2 {
		h.Set(header[i], header[i+1])
	}
	return scripted{resp: &Response{StatusCode: status, Header: h, Body: []byte(body)}}
}

func failure(msg string) scripted {
	return scripted{err: errors.New(msg)}
}

// scriptedTransport replays its script in order and repeats the last entry once exhausted.
type scriptedTransport struct {
	mu     sync.Mutex
	script []scripted
	routes map[string]scripted
	calls  []Request
}

func (s *scriptedTransport) Do(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if r, ok := s.routes[req.Path]; ok {
		return r.resp, r.err
	}
	if len(s.script) == 0 {
		return nil, errors.Newf("no scripted response for %s", req.Path)
	}
	next := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	return next.resp, next.err
}

func (s *scriptedTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestClient(t *scriptedTransport, rec *sleepRecorder, opts ...ClientOption) *Client {
	base := []ClientOption{WithSleep(rec.sleep), WithLogger(log.New(&bytes.Buffer{}))}
	return NewClient(t, append(base, opts...)...)
}

func TestClient(t *testing.T) {
	get := Request{Method: http.MethodGet, Path: "/me"}
	post := Request{Method: http.MethodPost, Path: "/users/u/playlists", Body: map[string]string{"name": "x"}}

	t.Run("returns 2xx responses", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(200, `{"id":"u1"}`)}}
		client := newTestClient(tr, &sleepRecorder{})

		var user SpotifyUser
		require.NoError(t, client.JSON(context.Background(), get, &user))
		assert.Equal(t, "u1", user.ID)
		assert.Equal(t, 1, tr.count())
	})

	t.Run("rate limit bound", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(429, "")}}
		rec := &sleepRecorder{}
		client := newTestClient(tr, rec)

		_, err := client.Do(context.Background(), get)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrRateLimitExceeded))
		assert.Equal(t, 4, tr.count(), "one request plus three retries, never a fourth retry")
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
	})

	t.Run("honours Retry-After", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{
			reply(429, "", "Retry-After", "7"),
			reply(200, `{}`),
		}}
		rec := &sleepRecorder{}
		client := newTestClient(tr, rec)

		_, err := client.Do(context.Background(), get)

		require.NoError(t, err)
		assert.Equal(t, 2, tr.count())
		assert.Equal(t, []time.Duration{7 * time.Second}, rec.delays)
	})

	t.Run("retries rate limited writes", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(429, ""), reply(201, `{"id":"p"}`)}}
		client := newTestClient(tr, &sleepRecorder{})

		_, err := client.Do(context.Background(), post)

		require.NoError(t, err)
		assert.Equal(t, 2, tr.count())
	})

	t.Run("server errors use the smaller ceiling", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(503, `{"error":{"status":503,"message":"busy"}}`)}}
		client := newTestClient(tr, &sleepRecorder{})

		_, err := client.Do(context.Background(), get)

		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrTransientProvider))
		assert.Equal(t, 3, tr.count())
		assert.Contains(t, err.Error(), "busy")
	})

	t.Run("server error then success", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(502, ""), reply(200, `{}`)}}
		client := newTestClient(tr, &sleepRecorder{})

		_, err := client.Do(context.Background(), get)

		require.NoError(t, err)
		assert.Equal(t, 2, tr.count())
	})

	t.Run("ambiguous write failures are not retried", func(t *testing.T) {
		for name, step := range map[string]scripted{
			"server error":  reply(500, ""),
			"network error": failure("connection reset by peer"),
		} {
			t.Run(name, func(t *testing.T) {
				tr := &scriptedTransport{script: []scripted{step, reply(201, `{}`)}}
				client := newTestClient(tr, &sleepRecorder{})

				_, err := client.Do(context.Background(), post)

				require.Error(t, err)
				assert.True(t, errors.Is(err, shared.ErrTransientProvider))
				assert.Equal(t, 1, tr.count())
			})
		}
	})

	t.Run("network errors on reads are retried", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{failure("connection reset by peer"), reply(200, `{}`)}}
		client := newTestClient(tr, &sleepRecorder{})

		_, err := client.Do(context.Background(), get)

		require.NoError(t, err)
		assert.Equal(t, 2, tr.count())
	})

	t.Run("typed non-retryable failures", func(t *testing.T) {
		tc := []struct {
			status int
			want   error
		}{
			{401, shared.ErrTokenExpired},
			{403, shared.ErrPermissionDenied},
			{404, shared.ErrNotFound},
			{400, shared.ErrAPIRequest},
		}

		for _, tt := range tc {
			t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
				tr := &scriptedTransport{script: []scripted{
					reply(tt.status, `{"error":{"status":0,"message":"nope"}}`),
					reply(200, `{}`),
				}}
				client := newTestClient(tr, &sleepRecorder{})

				_, err := client.Do(context.Background(), get)

				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
				assert.Equal(t, 1, tr.count())

				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.status, apiErr.Status)
				assert.Equal(t, "nope", apiErr.Message)
			})
		}
	})

	t.Run("auth failures belong to the auth family", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(401, "")}}
		_, err := newTestClient(tr, &sleepRecorder{}).Do(context.Background(), get)
		assert.True(t, errors.Is(err, shared.ErrAuth))
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		tr := &scriptedTransport{script: []scripted{reply(429, "")}}
		ctx, cancel := context.WithCancel(context.Background())
		client := NewClient(tr, WithLogger(log.New(&bytes.Buffer{})), WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

		_, err := client.Do(ctx, get)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, tr.count())
	})

	t.Run("debug trace", func(t *testing.T) {
		var buf bytes.Buffer
		logger := log.New(&buf)
		logger.SetLevel(log.DebugLevel)

		tr := &scriptedTransport{script: []scripted{reply(200, `{}`)}}
		client := NewClient(tr, WithLogger(logger))

		_, err := client.Do(context.Background(), get)
		require.NoError(t, err)

		out := buf.String()
		assert.Contains(t, out, "spotify request")
		assert.Contains(t, out, "method=GET")
		assert.Contains(t, out, "endpoint=/me")
		assert.Contains(t, out, "outcome=200")
		assert.Contains(t, out, "elapsed=")
	})

	t.Run("no trace above debug level", func(t *testing.T) {
		var buf bytes.Buffer
		tr := &scriptedTransport{script: []scripted{reply(200, `{}`)}}
		client := NewClient(tr, WithLogger(log.New(&buf)))

		_, err := client.Do(context.Background(), get)
		require.NoError(t, err)
		assert.NotContains(t, buf.String(), "spotify request")
	})
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, p.backoff(0))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, 5*time.Second, p.backoff(3))
	assert.Equal(t, 5*time.Second, p.backoff(80))

	cfg := shared.DefaultConfig().API
	assert.Equal(t, DefaultRetryPolicy(), RetryPolicyFromConfig(cfg))
}

func TestRequestIdempotent(t *testing.T) {
	for method, want := range map[string]bool{
		http.MethodGet:    true,
		http.MethodPut:    true,
		http.MethodDelete: true,
		http.MethodPost:   false,
		"post":            false,
	} {
		assert.Equal(t, want, Request{Method: method}.Idempotent(), method)
	}
}

func TestPaginate(t *testing.T) {
	page := func(items []string, next string) scripted {
		quoted := make([]string, len(items))
		for i, it := range items {
			quoted[i] = fmt.Sprintf("%q", it)
		}
		n := "null"
		if next != "" {
			n = fmt.Sprintf("%q", next)
		}
		return reply(200, fmt.Sprintf(`{"items":[%s],"total":5,"next":%s}`, strings.Join(quoted, ","), n))
	}

	newTransport := func() *scriptedTransport {
		return &scriptedTransport{routes: map[string]scripted{
			"/things":                          page([]string{"a", "b"}, "https://api.test/things?offset=2"),
			"https://api.test/things?offset=2": page([]string{"c", "d"}, "https://api.test/things?offset=4"),
			"https://api.test/things?offset=4": page([]string{"e"}, ""),
		}}
	}
	first := Request{Method: http.MethodGet, Path: "/things", Query: map[string]string{"limit": "2"}}

	t.Run("follows next until null", func(t *testing.T) {
		tr := newTransport()
		client := newTestClient(tr, &sleepRecorder{})

		var got []string
		for item, err := range Paginate[string](context.Background(), client, first) {
			require.NoError(t, err)
			got = append(got, item)
		}

		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
		assert.Equal(t, 3, tr.count())
		assert.Nil(t, tr.calls[1].Query, "next URLs already carry their query")
	})

	t.Run("is lazy", func(t *testing.T) {
		tr := newTransport()
		client := newTestClient(tr, &sleepRecorder{})

		for item, err := range Paginate[string](context.Background(), client, first) {
			require.NoError(t, err)
			if item == "b" {
				break
			}
		}
		assert.Equal(t, 1, tr.count())
	})

	t.Run("stops at the first error", func(t *testing.T) {
		tr := newTransport()
		tr.routes["https://api.test/things?offset=2"] = reply(404, "")
		client := newTestClient(tr, &sleepRecorder{})

		var got []string
		var errs []error
		for item, err := range Paginate[string](context.Background(), client, first) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			got = append(got, item)
		}

		assert.Equal(t, []string{"a", "b"}, got)
		require.Len(t, errs, 1)
		assert.True(t, errors.Is(errs[0], shared.ErrNotFound))
	})
}
