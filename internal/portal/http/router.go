package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/estatevault/portal/api/portal" // Swagger docs
	"github.com/estatevault/portal/internal/portal/realtime"
	"github.com/estatevault/portal/internal/portal/service"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/estatevault/portal/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     httpx.AccessVerifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	SessionService   *service.SessionService
	TwoFactorService *service.TwoFactorService
	RelayService     *service.RelayService
	Registry         *realtime.Registry
	Realtime         *realtime.Handler

	// ChallengePinger is probed by /readyz when login challenges live
	// outside the database.
	ChallengePinger Pinger
	Metrics         *metricsx.Metrics
	CookieSecure    bool
}

func NewRouter(
	verifier httpx.AccessVerifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		CookieSecure: true,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerMessages()
	r.registerRealtime()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// handle registers h under pattern with request metrics labelled by pattern.
func (r *Router) handle(pattern string, h http.Handler) {
	r.Mux.Handle(pattern, r.Metrics.Instrument(pattern, h))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Estate Portal API
//	@version		0.1.0
//	@description	Client portal for an estate-planning practice: password login with optional TOTP second factor, rotating refresh sessions and realtime messaging between clients and staff.
//	@description
//	@description				Access tokens are HS256 JWTs sent as "Authorization: Bearer {token}".
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Sessions:     r.SessionService,
		Metrics:      r.Metrics,
		CookieSecure: r.CookieSecure,
	}

	// Limited by IP + identifier so one address cannot hammer an account and
	// an account is not locked out by traffic from elsewhere.
	r.handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.LimitByIPAndField(httpx.StrictLimit, "identifier"),
		),
	)
	r.handle("POST /v1/auth/login/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleCompleteLogin),
			httpx.LimitByIP(httpx.StrictLimit),
		),
	)
	r.handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.LimitByIP(httpx.ModerateLimit),
		),
	)
	r.handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.LimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{TwoFactor: r.TwoFactorService, Metrics: r.Metrics}

	secured := func(fn http.HandlerFunc, limit httpx.Limit) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.LimitByUser(limit),
		)
	}

	r.handle("GET /v1/2fa/status", secured(h.HandleStatus, httpx.LenientLimit))
	r.handle("POST /v1/2fa/setup", secured(h.HandleSetup, httpx.ModerateLimit))
	// Code-checking endpoints get the strict profile.
	r.handle("POST /v1/2fa/verify", secured(h.HandleVerify, httpx.StrictLimit))
	r.handle("POST /v1/2fa/disable", secured(h.HandleDisable, httpx.StrictLimit))
	r.handle("POST /v1/2fa/backup-codes", secured(h.HandleRegenerateBackupCodes, httpx.StrictLimit))
}

func (r *Router) registerMessages() {
	h := &MessagesHandler{Relay: r.RelayService, Metrics: r.Metrics}

	r.handle("POST /v1/messages",
		httpx.Chain(http.HandlerFunc(h.HandleSend),
			httpx.AuthnMiddleware(r.verifier),
			httpx.LimitByUser(httpx.ModerateLimit),
		),
	)
	r.handle("POST /v1/messages/{id}/read",
		httpx.Chain(http.HandlerFunc(h.HandleMarkRead),
			httpx.AuthnMiddleware(r.verifier),
			httpx.LimitByUser(httpx.ModerateLimit),
		),
	)
	r.handle("GET /v1/presence/{id}",
		httpx.Chain(PresenceHandler(r.Registry),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireRole("admin", "support"),
			httpx.LimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerRealtime() {
	// The handler authenticates itself since browsers cannot set headers on
	// a websocket upgrade.
	r.handle("GET /v1/realtime",
		httpx.Chain(r.Realtime,
			httpx.LimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.LimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.ChallengePinger, r.Registry),
			httpx.LimitByIP(httpx.LenientLimit),
		),
	)
	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics",
			httpx.Chain(r.Metrics.Handler(),
				httpx.LimitByIP(httpx.PublicLimit),
			),
		)
	}
}
