package adminauth

import (
	"net/http"
	"strings"

	resp "invite_service/internal/lib/api/response"
	"invite_service/internal/lib/jwt"

	"github.com/go-chi/render"
)

// Require guards management endpoints behind an admin bearer token.
func Require(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Authorization bearer token is required"))

				return
			}

			if _, err := jwt.ParseAdminToken(token, jwtSecret); err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid or expired session"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
