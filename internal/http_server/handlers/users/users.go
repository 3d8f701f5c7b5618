package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"invite_service/internal/invite"
	resp "invite_service/internal/lib/api/response"
	sl "invite_service/internal/lib/logger"
	"invite_service/internal/models"
	"invite_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	College        string    `json:"college"`
	Branch         string    `json:"branch"`
	Year           string    `json:"year"`
	Token          string    `json:"token"`
	IsVerified     bool      `json:"is_verified"`
	TokenCreatedAt time.Time `json:"token_created_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Service interface {
	List(ctx context.Context) ([]models.User, error)
	Delete(ctx context.Context, userID int64) error
	DeleteAll(ctx context.Context) (int64, error)
}

// NewList serves the full user list. Tokens are masked for display.
func NewList(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewList"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		all, err := service.List(ctx)
		if err != nil {
			log.Error("failed to list users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		out := make([]User, 0, len(all))
		for _, u := range all {
			out = append(out, User{
				ID:             u.ID,
				Email:          u.Email,
				Name:           u.Name,
				College:        u.College,
				Branch:         u.Branch,
				Year:           u.Year,
				Token:          invite.MaskToken(u.Token),
				IsVerified:     u.IsVerified,
				TokenCreatedAt: u.TokenCreatedAt,
				CreatedAt:      u.CreatedAt,
				UpdatedAt:      u.UpdatedAt,
			})
		}

		render.JSON(w, r, out)
	}
}

type DeleteResponse struct {
	resp.Response
	Message string `json:"message"`
}

func NewDelete(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewDelete"

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

		if err := service.Delete(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to delete user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user deleted", slog.Int64("uid", userID))

		render.JSON(w, r, DeleteResponse{
			Response: resp.OK(),
			Message:  "User deleted successfully",
		})
	}
}

type DeleteAllResponse struct {
	resp.Response
	Message      string `json:"message"`
	DeletedCount int64  `json:"deleted_count"`
}

func NewDeleteAll(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewDeleteAll"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		count, err := service.DeleteAll(ctx)
		if err != nil {
			log.Error("failed to delete all users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("all users deleted", slog.Int64("count", count))

		message := "No users to delete"
		if count > 0 {
			message = "Successfully deleted all users"
		}

		render.JSON(w, r, DeleteAllResponse{
			Response:     resp.OK(),
			Message:      message,
			DeletedCount: count,
		})
	}
}
