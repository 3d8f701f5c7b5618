package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"invite_service/internal/invite"
	resp "invite_service/internal/lib/api/response"
	sl "invite_service/internal/lib/logger"
	"invite_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required"`
	College string `json:"college" validate:"required"`
	Branch  string `json:"branch" validate:"required"`
	Year    string `json:"year" validate:"required"`
}

type Response struct {
	resp.Response
	UserID int64 `json:"user_id"`
}

type Registrar interface {
	Create(ctx context.Context, r invite.Registrant) (models.User, error)
	QueueEmails(ctx context.Context, userIDs []int64) (sent int, failed []string, err error)
}

// New registers a single user and queues their verification email.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	service Registrar,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		user, err := service.Create(ctx, invite.Registrant{
			Email:   req.Email,
			Name:    req.Name,
			College: req.College,
			Branch:  req.Branch,
			Year:    req.Year,
		})
		if err != nil {
			if errors.Is(err, invite.ErrEmailTaken) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Email already registered"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if _, _, err := service.QueueEmails(ctx, []int64{user.ID}); err != nil {
			// Registration already committed; the email can be resent later.
			log.Error("failed to queue verification email", sl.Err(err))
		}

		log.Info("user registered", slog.Int64("uid", user.ID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			UserID:   user.ID,
		})
	}
}
