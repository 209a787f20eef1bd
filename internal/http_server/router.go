package httpserver

import (
	"log/slog"
	"net/http"

	"qonbaq/internal/http_server/handlers/health"
	"qonbaq/internal/http_server/handlers/login"
	"qonbaq/internal/http_server/handlers/logout"
	"qonbaq/internal/http_server/handlers/me"
	"qonbaq/internal/http_server/handlers/refresh"
	"qonbaq/internal/http_server/handlers/register"
	"qonbaq/internal/middleware/authenticator"
	"qonbaq/internal/middleware/cors"
	"qonbaq/internal/middleware/ratelimit"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AuthService interface {
	register.UserRegisterer
	login.UserAuthenticator
	refresh.TokenRefresher
	logout.SessionCloser
	me.UserProvider
}

type Deps struct {
	Auth        AuthService
	Tokens      authenticator.AccessVerifier
	Metrics     prometheus.Gatherer
	CORSOrigins []string
	RateLimit   bool
}

func NewRouter(log *slog.Logger, deps Deps) *chi.Mux {
	validate := validator.New()

	limit := func(l func() func(http.Handler) http.Handler) func(http.Handler) http.Handler {
		if !deps.RateLimit {
			return ratelimit.Off()
		}
		return l()
	}

	gatherer := deps.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(deps.CORSOrigins))

	r.Route("/auth", func(r chi.Router) {
		r.With(limit(ratelimit.Register)).Post("/register", register.New(log, validate, deps.Auth))
		r.With(limit(ratelimit.Login)).Post("/login", login.New(log, validate, deps.Auth))
		r.With(limit(ratelimit.Refresh)).Post("/refresh", refresh.New(log, validate, deps.Auth))
		r.With(limit(ratelimit.Logout)).Post("/logout", logout.New(log, validate, deps.Auth))
		r.With(limit(ratelimit.Me), authenticator.New(log, deps.Tokens)).Get("/me", me.New(log, deps.Auth))
	})

	r.Get("/health", health.New())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
