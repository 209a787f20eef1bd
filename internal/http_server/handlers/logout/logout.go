package logout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"qonbaq/internal/auth"
	resp "qonbaq/internal/lib/api/response"
	"qonbaq/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type SessionCloser interface {
	Logout(ctx context.Context, token string) error
}

func New(log *slog.Logger, validate *validator.Validate, closer SessionCloser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ValidationError(validateErr))

				return
			}

			log.Error("failed to validate request", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := closer.Logout(ctx, req.RefreshToken); err != nil {
			if errors.Is(err, auth.ErrRefreshTokenNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Refresh token not found"))

				return
			}

			log.Error("failed to logout", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("logout successful")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Logged out successfully",
		})
	}
}
