package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/service"
	"github.com/kohakuhq/kohaku/internal/server/store"
	"github.com/kohakuhq/kohaku/internal/server/ws"
	"github.com/kohakuhq/kohaku/pkg/httpx"
	"github.com/kohakuhq/kohaku/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	Tokens   *service.TokenService
	Gate     *service.AuthorizeService
	Keys     *service.KeysService
	Notify   *service.NotifyService
	Registry *ws.Registry
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerNotify()
	r.registerWS()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(&LoginHandler{Gate: r.Gate, Tokens: r.Tokens},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /auth/manage/create",
		httpx.Chain(&CreateKeyHandler{Gate: r.Gate, Keys: r.Keys},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /auth/manage/revoke",
		httpx.Chain(&RevokeKeyHandler{Gate: r.Gate, Keys: r.Keys},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /auth/manage/refresh",
		httpx.Chain(&RefreshHandler{Gate: r.Gate, Tokens: r.Tokens},
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerNotify() {
	codes := &NotifyCodesHandler{Gate: r.Gate, Store: r.store}
	subs := &NotifySubscriptionsHandler{Gate: r.Gate, Store: r.store}

	r.Mux.Handle("POST /notify/codes", http.HandlerFunc(codes.Register))
	r.Mux.Handle("GET /notify/codes", http.HandlerFunc(codes.List))
	r.Mux.Handle("DELETE /notify/codes/{code}", http.HandlerFunc(codes.Unregister))

	r.Mux.Handle("POST /notify/subscriptions", http.HandlerFunc(subs.Subscribe))
	r.Mux.Handle("DELETE /notify/subscriptions", http.HandlerFunc(subs.Unsubscribe))

	r.Mux.Handle("POST /notify/publish",
		httpx.Chain(&PublishHandler{Gate: r.Gate, Notify: r.Notify},
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerWS() {
	r.Mux.Handle("GET /ws", &UpgradeHandler{
		Gate:     r.Gate,
		Registry: r.Registry,
		Logger:   r.logger,
	})
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))
}
