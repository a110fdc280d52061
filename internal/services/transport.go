package services

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// Request describes one provider call.
//
// Path is either relative to the transport's base URL or an absolute URL, as
// returned in a paging object's "next" field.
type Request struct {
	Method      string
	Path        string
	Query       map[string]string
	Body        any    // JSON encoded when set
	RawBody     []byte // sent verbatim with ContentType, takes precedence over Body
	ContentType string
}

// Idempotent reports whether replaying r after an ambiguous failure cannot duplicate side effects.
func (r Request) Idempotent() bool {
	switch strings.ToUpper(r.Method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (r Request) endpoint() string {
	return r.Method + " " + r.Path
}

// Response is the raw provider reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs a single HTTP exchange with no retry policy of its own.
//
// A non-nil error means no response was received (connection reset, DNS, timeout).
// Any received response, including 4xx and 5xx, is returned with a nil error.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the [Transport] backed by a [resty.Client].
//
// The wrapped [http.Client] is expected to carry authentication, normally the
// oauth2 client returned by [SessionManager].
type HTTPTransport struct {
	client *resty.Client
}

// NewHTTPTransport creates an [HTTPTransport] sending relative paths to baseURL.
func NewHTTPTransport(baseURL string, httpClient *http.Client) *HTTPTransport {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	return &HTTPTransport{client: client}
}

// Do implements [Transport].
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	r := t.client.R().SetContext(ctx)

	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}

	switch {
	case req.RawBody != nil:
		r.SetHeader("Content-Type", req.ContentType).SetBody(req.RawBody)
	case req.Body != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", req.endpoint())
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}
