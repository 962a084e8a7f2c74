package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/orgauth/internal/orgauth/service"
	"github.com/aussiebroadwan/orgauth/internal/orgauth/store"
	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/httpx"
	"github.com/aussiebroadwan/orgauth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Dispatcher *service.Dispatcher

	// Hooks are handed to every dispatcher call.
	Hooks service.Hooks

	// CookieSecure marks the session cookie Secure. Turn it on whenever the
	// service is reached over TLS.
	CookieSecure bool
}

func NewRouter(
	d *service.Dispatcher,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		Dispatcher:   d,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerProtocol()
	r.registerConfirm()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerProtocol() {
	h := &ProtocolHandler{
		Dispatcher:   r.Dispatcher,
		Hooks:        r.Hooks,
		CookieSecure: r.CookieSecure,
	}

	r.Mux.HandleFunc("POST "+authsdk.DefaultUserPath, h.HandleUser)
	r.Mux.HandleFunc("POST "+authsdk.DefaultAdminPath, h.HandleAdmin)
	r.Mux.HandleFunc("GET "+authsdk.DefaultSessionPath, h.HandleSession)
}

func (r *Router) registerConfirm() {
	h := &ConfirmHandler{Credentials: r.Dispatcher.Credentials, MainSite: r.Dispatcher.Config.MainSite}

	r.Mux.HandleFunc("GET /register/{name}/{key}", h.HandleRegistration)
	r.Mux.HandleFunc("GET /newemail/{name}/{token}", h.HandleEmail)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET "+authsdk.DefaultLivezPath, LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
