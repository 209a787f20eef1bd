package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"qonbaq/internal/auth"
	resp "qonbaq/internal/lib/api/response"
	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// Request needs email or username. Email wins when both are set.
type Request struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

type UserAuthenticator interface {
	Login(ctx context.Context, email, username, password string) (models.User, models.TokenPair, error)
}

func New(log *slog.Logger, validate *validator.Validate, authenticator UserAuthenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		req.Email = strings.TrimSpace(req.Email)

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			if errors.As(err, &validateErr) {
				log.Info("invalid request", sl.Err(err))

				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.ValidationError(validateErr))

				return
			}

			log.Error("failed to validate request", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if req.Email == "" && req.Username == "" {
			log.Info("neither email nor username given")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.InvalidField("email", "required_without", "either email or username is required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, pair, err := authenticator.Login(ctx, req.Email, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid credentials"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged in successfully", slog.String("uid", user.ID.String()))

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			User:         user.Public(),
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
	}
}
