package refreshtoken

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "invite_service/internal/lib/api/response"
	sl "invite_service/internal/lib/logger"
	"invite_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Message  string `json:"message"`
	NewToken string `json:"new_token"`
}

type TokenRefresher interface {
	Refresh(ctx context.Context, userID int64) (string, error)
}

func New(
	log *slog.Logger,
	service TokenRefresher,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refreshtoken.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid user id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		newToken, err := service.Refresh(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to refresh token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("token refreshed", slog.Int64("uid", userID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Token refreshed successfully",
			NewToken: newToken,
		})
	}
}
