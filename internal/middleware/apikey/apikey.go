package apikey

import (
	"crypto/subtle"
	"net/http"

	resp "invite_service/internal/lib/api/response"

	"github.com/go-chi/render"
)

const headerName = "x-api-key"

// Require rejects requests whose x-api-key header does not match the
// shared secret, before they reach the verification gateway.
func Require(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerName)

			if key == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("x-api-key header is required"))

				return
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Invalid API key"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
