package verifydiscord

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
	Email         string `json:"email" validate:"required,email"`
	Token         string `json:"token" validate:"required"`
	DiscordUserID string `json:"discord_user_id" validate:"required"`
}

type Response struct {
	resp.Response
	Message       string `json:"message,omitempty"`
	DiscordUserID string `json:"discord_user_id"`
}

type Verifier interface {
	Verify(ctx context.Context, email, code string) (verify.Result, error)
}

// New handles the Discord bot's verification calls. Identical decision
// logic to the plain /verify path; the discord user id is carried for
// correlation only.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	gateway Verifier,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifydiscord.New"

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

		log = log.With(slog.String("discord_user_id", req.DiscordUserID))

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
			log.Info("discord verification rejected", slog.String("reason", string(result.Reason)))

			render.JSON(w, r, Response{
				Response:      resp.Error(result.Reason.Message()),
				DiscordUserID: req.DiscordUserID,
			})

			return
		}

		log.Info("discord verification accepted")

		render.JSON(w, r, Response{
			Response:      resp.OK(),
			Message:       result.Reason.Message(),
			DiscordUserID: req.DiscordUserID,
		})
	}
}
