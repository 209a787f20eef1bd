package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"qonbaq/internal/auth"
	resp "qonbaq/internal/lib/api/response"
	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/middleware/authenticator"
	"qonbaq/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	User models.PublicUser `json:"user"`
}

type UserProvider interface {
	CurrentUser(ctx context.Context, userID string) (models.User, error)
}

// New must be mounted behind the authenticator middleware.
func New(log *slog.Logger, provider UserProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		payload, ok := authenticator.PayloadFromContext(r.Context())
		if !ok {
			log.Error("no token payload in context")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := provider.CurrentUser(ctx, payload.UserID)
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to get current user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user.Public(),
		})
	}
}
