package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"github.com/go-resty/resty/v2"
)

const maxCoverRedirects = 3

// spotifyImageDomains serve playlist mosaics, album art and uploaded covers.
var spotifyImageDomains = []string{"scdn.co", "spotifycdn.com"}

// ImageFetcher downloads cover art referenced by a snapshot.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// SpotifyImageHost reports whether host is one of the provider's image CDNs.
func SpotifyImageHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range spotifyImageDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// CoverFetcher is the [ImageFetcher] used for real accounts.
//
// Image URLs come from snapshot files, which travel between people, so the
// fetcher never sends credentials, only follows https URLs on
// [SpotifyImageHost] and reads at most [MaxCoverBytes] of a body.
type CoverFetcher struct {
	client  *resty.Client
	allowed func(*url.URL) bool
}

// NewCoverFetcher creates a [CoverFetcher]. httpClient must not carry
// authentication; nil uses a plain client with a 30 second timeout.
func NewCoverFetcher(httpClient *http.Client) *CoverFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	f := &CoverFetcher{allowed: imageCDNURL}
	f.client = resty.NewWithClient(httpClient).
		SetRetryCount(0).
		SetResponseBodyLimit(MaxCoverBytes).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxCoverRedirects {
				return errors.Newf("stopped after %d redirects", maxCoverRedirects)
			}
			if !f.allowed(req.URL) {
				return errors.Wrapf(shared.ErrInvalidArgument, "redirect to %s refused", req.URL.Host)
			}
			return nil
		}))
	return f
}

func imageCDNURL(u *url.URL) bool {
	return u.Scheme == "https" && SpotifyImageHost(u.Hostname())
}

// FetchImage implements [ImageFetcher].
func (f *CoverFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if imageURL == "" {
		return nil, errors.Wrap(shared.ErrMissingArgument, "image url")
	}

	u, err := url.Parse(imageURL)
	if err != nil || !f.allowed(u) {
		return nil, errors.WithHint(
			errors.Wrapf(shared.ErrInvalidArgument, "cover url %q is not on a Spotify image host", imageURL),
			"covers are only downloaded from *.scdn.co and *.spotifycdn.com over https",
		)
	}

	endpoint := http.MethodGet + " " + u.Host + u.Path
	resp, err := f.client.R().SetContext(ctx).Get(u.String())
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, errors.Wrapf(shared.ErrInvalidArgument, "cover image is larger than %d bytes", MaxCoverBytes)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s", endpoint)
	}
	if resp.IsError() {
		return nil, &APIError{
			Status:   resp.StatusCode(),
			Endpoint: endpoint,
			kind:     kindForStatus(resp.StatusCode()),
		}
	}
	return resp.Body(), nil
}
