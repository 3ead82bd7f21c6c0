// Package httpapi exposes the engine over HTTP: credential endpoints, a
// token introspection endpoint, guarded account routes, and operational
// endpoints (health, metrics).
package httpapi

import (
	"log"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/metrics/export/prometheus"
	"github.com/MrEthical07/goCred/middleware"
)

// API bundles the engine with its HTTP surface.
type API struct {
	engine *goCred.Engine
	logger *log.Logger
}

func New(engine *goCred.Engine, logger *log.Logger) *API {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &API{
		engine: engine,
		logger: logger,
	}
}

// Routes builds the router. Client IPs recovered by RealIP are attached to
// the request context so audit events can record them.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(a.withClientIP)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", prometheus.NewExporter(a.engine).Handler())

	r.Post("/register", a.handleRegister)
	r.Post("/login", a.handleLogin)
	r.Post("/refresh", a.handleRefresh)
	r.Post("/logout", a.handleLogout)
	r.Get("/check-token", a.handleCheckToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(a.engine))

		r.Get("/users/me", a.handleMe)
		r.Put("/users/me", a.handleUpdateMe)
		r.Put("/users/{username}", a.handleUpdateUser)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(a.engine))

			r.Get("/users", a.handleListUsers)
			r.Get("/users/{username}", a.handleGetUser)
			r.Delete("/users/{username}", a.handleDeleteUser)
		})
	})

	return r
}

func (a *API) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := goCred.WithClientIP(r.Context(), ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
