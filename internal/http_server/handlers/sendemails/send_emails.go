package sendemails

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	resp "invite_service/internal/lib/api/response"
	sl "invite_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	UserIDs []int64 `json:"user_ids" validate:"required,min=1"`
}

type Response struct {
	resp.Response
	Message    string `json:"message"`
	EmailsSent int    `json:"emails_sent"`
}

type EmailQueuer interface {
	QueueEmails(ctx context.Context, userIDs []int64) (sent int, failed []string, err error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	service EmailQueuer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendemails.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		sent, failed, err := service.QueueEmails(ctx, req.UserIDs)
		if err != nil {
			log.Error("failed to queue emails", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		message := fmt.Sprintf("Successfully queued %d emails", sent)
		if len(failed) > 0 {
			message += fmt.Sprintf(". Failed to queue: %s", strings.Join(failed, ", "))
		}

		log.Info("emails queued", slog.Int("sent", sent), slog.Int("failed", len(failed)))

		render.JSON(w, r, Response{
			Response:   resp.OK(),
			Message:    message,
			EmailsSent: sent,
		})
	}
}
