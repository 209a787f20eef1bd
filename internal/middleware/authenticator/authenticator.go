package authenticator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"qonbaq/internal/lib/api/response"
	"qonbaq/internal/lib/jwt"
	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

const bearerPrefix = "Bearer "

type payloadKey struct{}

type AccessVerifier interface {
	VerifyAccess(token string) (models.TokenPayload, error)
}

// New rejects requests without a valid "Authorization: Bearer <access token>"
// and stores the token payload in the request context.
func New(log *slog.Logger, verifier AccessVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		log := log.With(slog.String("component", "middleware/authenticator"))

		fn := func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(header, bearerPrefix)
			if !ok || token == "" {
				log.Debug("missing bearer token", slog.String("request_id", middleware.GetReqID(r.Context())))
				unauthorized(w, r)
				return
			}

			payload, err := verifier.VerifyAccess(token)
			if err != nil {
				if errors.Is(err, jwt.ErrSecretNotSet) {
					log.Error("access secret is not configured", sl.Err(err))
				} else {
					log.Debug("invalid access token", sl.Err(err), slog.String("request_id", middleware.GetReqID(r.Context())))
				}

				unauthorized(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPayload(r.Context(), payload)))
		}

		return http.HandlerFunc(fn)
	}
}

func WithPayload(ctx context.Context, p models.TokenPayload) context.Context {
	return context.WithValue(ctx, payloadKey{}, p)
}

func PayloadFromContext(ctx context.Context) (models.TokenPayload, bool) {
	p, ok := ctx.Value(payloadKey{}).(models.TokenPayload)
	return p, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error("unauthorized"))
}
