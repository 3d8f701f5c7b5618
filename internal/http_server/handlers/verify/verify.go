package verify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "invite_service/internal/lib/api/response"
	sl "invite_service/internal/lib/logger"
	"invite_service/internal/verify"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type Response struct {
	resp.Response
	Message string `json:"message,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, email, code string) (verify.Result, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	gateway Verifier,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		result, err := gateway.Verify(ctx, req.Email, req.Token)
		if err != nil {
			log.Error("verification failed", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if !result.OK {
			render.JSON(w, r, Response{
				Response: resp.Error(result.Reason.Message()),
			})

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  result.Reason.Message(),
		})
	}
}
