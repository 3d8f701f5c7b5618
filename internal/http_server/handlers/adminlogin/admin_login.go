package adminlogin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	resp "invite_service/internal/lib/api/response"
	"invite_service/internal/lib/jwt"
	sl "invite_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type Request struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Token string `json:"token"`
}

// New authenticates the dashboard admin and issues a session token for
// the management endpoints.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	username string,
	passwordHash string,
	jwtSecret string,
	jwtTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.adminlogin.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(username)) == 1
		passwordErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password))

		if !usernameOK || passwordErr != nil {
			log.Warn("rejected admin login attempt")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid credentials"))

			return
		}

		token, err := jwt.NewAdminToken(req.Username, jwtSecret, jwtTTL)
		if err != nil {
			log.Error("failed to issue admin token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("admin logged in")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Token:    token,
		})
	}
}
