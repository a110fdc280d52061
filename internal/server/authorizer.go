package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
)

const shutdownTimeout = 5 * time.Second

// BrowserAuthorizer completes the interactive half of the authorization code flow.
//
// It serves the redirect URI on a local listener, opens the authorization URL in
// the user's browser and waits for the callback carrying the code.
type BrowserAuthorizer struct {
	Host string
	Port int
	Path string

	// Open sends the user to the authorization URL. Defaults to [shared.OpenBrowser].
	Open func(url string) error
	// Out receives the authorization URL when the browser cannot be opened.
	Out io.Writer

	logger *log.Logger

	mu   sync.Mutex
	addr string
}

// NewBrowserAuthorizer derives the callback path and port from redirectURI, falling back to cfg.
func NewBrowserAuthorizer(redirectURI string, cfg shared.ServerConfig, logger *log.Logger) (*BrowserAuthorizer, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	a := &BrowserAuthorizer{
		Host:   cfg.Host,
		Port:   cfg.Port,
		Path:   "/callback",
		Open:   shared.OpenBrowser,
		Out:    os.Stderr,
		logger: logger,
	}
	if a.Host == "" {
		a.Host = "127.0.0.1"
	}

	if redirectURI == "" {
		return a, nil
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.Wrapf(shared.ErrInvalidArgument, "redirect uri %q: %v", redirectURI, err)
	}
	if u.Path != "" {
		a.Path = u.Path
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrapf(shared.ErrInvalidArgument, "redirect uri port %q", p)
		}
		a.Port = port
	}
	return a, nil
}

// Addr returns the address of the running callback listener, or "" when none is running.
func (a *BrowserAuthorizer) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *BrowserAuthorizer) setAddr(addr string) {
	a.mu.Lock()
	a.addr = addr
	a.mu.Unlock()
}

// Authorize implements services.Authorizer.
func (a *BrowserAuthorizer) Authorize(ctx context.Context, authURL, state string) (string, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(a.Host, strconv.Itoa(a.Port)))
	if err != nil {
		return "", errors.WithHintf(
			errors.Wrapf(err, "failed to listen for the authorization callback on port %d", a.Port),
			"free port %d or change [server] port and the redirect uri to match", a.Port,
		)
	}
	a.setAddr(listener.Addr().String())
	defer a.setAddr("")

	handler := NewOAuthHandler(a.Path, state)
	router := NewBasicRouter()
	router.Use(RequestLogger(a.logger))
	router.Handler(handler)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.logger.Warn("callback server did not shut down cleanly", "error", err)
		}
	}()

	a.logger.Debug("waiting for authorization callback", "addr", listener.Addr().String(), "path", a.Path)

	open := a.Open
	if open == nil {
		open = shared.OpenBrowser
	}
	if err := open(authURL); err != nil {
		a.logger.Warn("could not open a browser", "error", err)
		if a.Out != nil {
			fmt.Fprintf(a.Out, "Open this URL to authorize spotsync:\n\n  %s\n\n", authURL)
		}
	}

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return "", err
		}
		return result.Code, nil
	case err := <-serveErr:
		return "", errors.Wrap(err, "callback server failed")
	case <-ctx.Done():
		return "", errors.Wrap(context.Cause(ctx), "waiting for authorization")
	}
}
