package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func Verify() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func AdminLogin() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Upload() func(http.Handler) http.Handler {
	return limitByIP(10, time.Hour)
}

func RefreshToken() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(limit, window)
}
