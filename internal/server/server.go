package server

import "net/http"

// Middleware decorates a handler. See [BasicRouter.Use] for the order they run in.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the callback paths it answers, so the
// authorizer can mount it without repeating the redirect URI's path.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router mounts callback handlers behind middleware.
type Router interface {
	http.Handler
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
}

var (
	_ Router  = (*BasicRouter)(nil)
	_ Handler = (*OAuthHandler)(nil)
)
