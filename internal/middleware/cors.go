package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// AllowedOrigins lists the browser origins the UI may run on: the local dev servers
// plus the configured UI origin.
func AllowedOrigins(uiOrigin string) []string {
	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if o := strings.TrimRight(strings.TrimSpace(uiOrigin), "/"); o != "" {
		origins = append(origins, o)
	}
	return origins
}

// CORS allows AllowedOrigins(uiOrigin).
func CORS(uiOrigin string) func(http.Handler) http.Handler {
	origins := AllowedOrigins(uiOrigin)

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
