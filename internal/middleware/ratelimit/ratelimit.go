package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

func Login() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Register() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Refresh() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func Logout() func(http.Handler) http.Handler {
	return limitByIP(20, 10*time.Minute)
}

func Me() func(http.Handler) http.Handler {
	return limitByIP(120, time.Minute)
}

// Off passes every request through. Used when limits are disabled in config.
func Off() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.LimitByIP(limit, window)
}
