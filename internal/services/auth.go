package services

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// DefaultAuthTimeout bounds the browser handshake.
const DefaultAuthTimeout = 2 * time.Minute

// DefaultScopes covers reading and rewriting playlists, covers and liked songs.
func DefaultScopes() []string {
	return []string{
		spotifyauth.ScopeUserReadPrivate,
		spotifyauth.ScopePlaylistReadPrivate,
		spotifyauth.ScopePlaylistReadCollaborative,
		spotifyauth.ScopePlaylistModifyPublic,
		spotifyauth.ScopePlaylistModifyPrivate,
		spotifyauth.ScopeUserLibraryRead,
		spotifyauth.ScopeUserLibraryModify,
		spotifyauth.ScopeImageUpload,
	}
}

// Authorizer runs the interactive part of the authorization code flow: it sends
// the user to authURL and returns the code delivered to the redirect URI for state.
//
// Implementations must return when ctx is done.
type Authorizer interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// AuthorizerFunc adapts a function to [Authorizer].
type AuthorizerFunc func(ctx context.Context, authURL, state string) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, authURL, state string) (string, error) {
	return f(ctx, authURL, state)
}

// AuthSession is the authorized state bound to one account identity.
//
// A session runs one operation at a time; see [AuthSession.Acquire].
type AuthSession struct {
	Identity string
	User     SpotifyUser

	library Library
	busy    atomic.Bool
	invalid atomic.Bool
}

// NewAuthSession binds an already-authorized [Library] to identity.
func NewAuthSession(identity string, user SpotifyUser, library Library) *AuthSession {
	return &AuthSession{Identity: identity, User: user, library: library}
}

// Library returns the provider operations for this session.
func (s *AuthSession) Library() Library { return s.library }

// UserID returns the provider user id the session is authorized as.
func (s *AuthSession) UserID() string { return s.User.ID }

// Valid reports whether the session has not been discarded by an identity switch or logout.
func (s *AuthSession) Valid() bool { return !s.invalid.Load() }

// Acquire marks the session busy for one operation. The returned release must be called when it ends.
func (s *AuthSession) Acquire() (release func(), err error) {
	if !s.Valid() {
		return nil, errors.Wrapf(shared.ErrNotAuthenticated, "session for %q was discarded", s.Identity)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, errors.Wrapf(shared.ErrSessionBusy, "account %q", s.Identity)
	}
	var once sync.Once
	return func() { once.Do(func() { s.busy.Store(false) }) }, nil
}

func (s *AuthSession) invalidate() { s.invalid.Store(true) }

// SessionManagerOpts configures a [SessionManager].
type SessionManagerOpts struct {
	Credentials   shared.SpotifyConfig
	Scopes        []string
	Cache         *TokenCache
	Authorizer    Authorizer
	Timeout       time.Duration
	BaseURL       string
	ClientOptions []ClientOption
	Logger        *log.Logger

	// Endpoint overrides the Spotify accounts service, for tests.
	Endpoint *oauth2.Endpoint

	// NewTransport builds the transport for an authorized HTTP client. Defaults to [NewHTTPTransport].
	NewTransport func(baseURL string, httpClient *http.Client) Transport

	// Images downloads covers during import. Defaults to a [CoverFetcher].
	Images ImageFetcher
}

// SessionManager maps account identities to sessions and their cached tokens.
//
// Only one identity is active at a time. Authenticating a different identity
// discards the previous identity's session first, so no operation can keep
// using a token that belongs to another account.
type SessionManager struct {
	mu       sync.Mutex
	oauth    *oauth2.Config
	opts     SessionManagerOpts
	sessions map[string]*AuthSession
	active   string
}

// NewSessionManager creates a [SessionManager] for the configured Spotify application.
func NewSessionManager(opts SessionManagerOpts) (*SessionManager, error) {
	if opts.Credentials.ClientID == "" || opts.Credentials.ClientSecret == "" {
		return nil, errors.WithHint(
			errors.Wrap(shared.ErrMissingCredentials, "spotify client id and secret"),
			"set CLIENT_ID and CLIENT_SECRET or fill [credentials.spotify] in the config file",
		)
	}
	if opts.Cache == nil {
		return nil, errors.Wrap(shared.ErrMissingArgument, "token cache")
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAuthTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	endpoint := oauth2.Endpoint{AuthURL: spotifyauth.AuthURL, TokenURL: spotifyauth.TokenURL}
	if opts.Endpoint != nil {
		endpoint = *opts.Endpoint
	}
	if opts.NewTransport == nil {
		opts.NewTransport = func(baseURL string, c *http.Client) Transport { return NewHTTPTransport(baseURL, c) }
	}
	if opts.Images == nil {
		opts.Images = NewCoverFetcher(nil)
	}

	return &SessionManager{
		oauth: &oauth2.Config{
			ClientID:     opts.Credentials.ClientID,
			ClientSecret: opts.Credentials.ClientSecret,
			RedirectURL:  opts.Credentials.RedirectURI,
			Scopes:       opts.Scopes,
			Endpoint:     endpoint,
		},
		opts:     opts,
		sessions: make(map[string]*AuthSession),
	}, nil
}

// Active returns the identity of the current session, or "".
func (m *SessionManager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Cache returns the token cache.
func (m *SessionManager) Cache() *TokenCache { return m.opts.Cache }

// Authenticate returns an authorized session for identity.
//
// A cached token is reused unless cleanCache is set, in which case the record
// is deleted first. Without a usable token the browser handshake runs, bounded
// by the configured timeout ([shared.ErrAuthTimeout]). A cached token that the
// provider rejects is deleted and replaced by one fresh handshake.
func (m *SessionManager) Authenticate(ctx context.Context, identity string, cleanCache bool) (*AuthSession, error) {
	if identity == "" {
		return nil, errors.WithHint(
			errors.Wrap(shared.ErrMissingArgument, "account identity"),
			"pass --account or set SPOTIFY_USERNAME",
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" && m.active != identity {
		m.opts.Logger.Debug("switching account", "from", m.active, "to", identity)
		m.discard(m.active)
	}

	if cleanCache {
		m.discard(identity)
		if err := m.opts.Cache.Delete(identity); err != nil {
			return nil, err
		}
	} else if s, ok := m.sessions[identity]; ok {
		m.active = identity
		return s, nil
	}

	token, err := m.opts.Cache.Load(identity)
	if err != nil {
		m.opts.Logger.Warn("ignoring unreadable token cache", "identity", identity, "error", err)
		token = nil
	}

	fromCache := token != nil
	if !fromCache {
		if token, err = m.handshake(ctx); err != nil {
			return nil, err
		}
	}

	session, err := m.open(ctx, identity, token)
	if err != nil && fromCache && errors.Is(err, shared.ErrAuth) {
		m.opts.Logger.Warn("cached token rejected, reauthorizing", "identity", identity)
		if err := m.opts.Cache.Delete(identity); err != nil {
			return nil, err
		}
		if token, err = m.handshake(ctx); err != nil {
			return nil, err
		}
		fromCache = false
		session, err = m.open(ctx, identity, token)
	}
	if err != nil {
		return nil, err
	}

	if !fromCache {
		if err := m.opts.Cache.Save(identity, token); err != nil {
			return nil, err
		}
	}

	m.sessions[identity] = session
	m.active = identity
	m.opts.Logger.Info("authenticated", "identity", identity, "user", session.User.ID)
	return session, nil
}

// Logout discards the session for identity and deletes its cached token.
func (m *SessionManager) Logout(identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discard(identity)
	return m.opts.Cache.Delete(identity)
}

// discard invalidates and forgets the in-memory session for identity. Callers hold m.mu.
func (m *SessionManager) discard(identity string) {
	if s, ok := m.sessions[identity]; ok {
		s.invalidate()
		delete(m.sessions, identity)
	}
	if m.active == identity {
		m.active = ""
	}
}

func (m *SessionManager) handshake(ctx context.Context) (*oauth2.Token, error) {
	if m.opts.Authorizer == nil {
		return nil, errors.Wrap(shared.ErrNotAuthenticated, "no cached token and no interactive authorizer")
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, err
	}
	authURL := m.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))

	hctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	code, err := m.opts.Authorizer.Authorize(hctx, authURL, state)
	if err != nil {
		if ctx.Err() == nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return nil, errors.WithHint(
				errors.Wrapf(shared.ErrAuthTimeout, "no callback within %s", m.opts.Timeout),
				"complete the login in the browser, or raise api.auth_timeout_seconds",
			)
		}
		if errors.Is(err, shared.ErrAuth) {
			return nil, err
		}
		return nil, errors.Wrapf(shared.ErrAuth, "authorization: %v", err)
	}

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrapf(shared.ErrAuth, "token exchange: %v", err)
	}
	return token, nil
}

// open builds the authorized client stack for token and resolves the account profile.
func (m *SessionManager) open(ctx context.Context, identity string, token *oauth2.Token) (*AuthSession, error) {
	cache := m.opts.Cache
	logger := m.opts.Logger
	source := &refreshableTokenSource{
		source: m.oauth.TokenSource(context.Background(), token),
		callback: func(t *oauth2.Token) {
			if err := cache.Save(identity, t); err != nil {
				logger.Error("failed to cache token", "identity", identity, "error", err)
			}
		},
	}

	httpClient := oauth2.NewClient(context.Background(), source)
	client := NewClient(m.opts.NewTransport(m.opts.BaseURL, httpClient), m.opts.ClientOptions...)
	library := NewSpotifyService(client, WithImageFetcher(m.opts.Images))

	user, err := library.UserProfile(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving profile for %q", identity)
	}
	return NewAuthSession(identity, *user, library), nil
}

// refreshableTokenSource reports every new access token to callback, including the first.
type refreshableTokenSource struct {
	mu       sync.Mutex
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	last     string
}

func (s *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, errors.Wrapf(shared.ErrTokenExpired, "refresh: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if s.callback != nil {
			s.callback(token)
		}
	}
	return token, nil
}
