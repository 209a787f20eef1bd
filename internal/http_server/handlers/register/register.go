package register

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
	"qonbaq/internal/lib/password"
	"qonbaq/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type Response struct {
	resp.Response
	User         models.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

type UserRegisterer interface {
	Register(ctx context.Context, email, username, password string) (models.User, models.TokenPair, error)
}

func New(log *slog.Logger, validate *validator.Validate, registerer UserRegisterer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, pair, err := registerer.Register(ctx, req.Email, req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrEmailTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User with this email already exists"))
			case errors.Is(err, auth.ErrUsernameTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User with this username already exists"))
			case errors.Is(err, password.ErrTooLong):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.InvalidField("password", "max", "field password must be at most 72 bytes"))
			default:
				log.Error("failed to register user", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("user registered", slog.String("uid", user.ID.String()))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:     resp.OK(),
			User:         user.Public(),
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
	}
}
