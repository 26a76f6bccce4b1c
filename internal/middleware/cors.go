package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/squadhq/intake/internal/config"
)

// CORS returns a middleware that applies the configured cross-origin policy.
// Preflight requests are answered directly with 204.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed := allowOrigin(cfg, wildcard, origin); allowed != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowed)
				if allowed != "*" {
					h.Add("Vary", "Origin")
				}
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}

				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", methods)
					h.Set("Access-Control-Allow-Headers", headers)
					if cfg.MaxAge > 0 {
						h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
					}
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// the origin is not allowed. Credentials cannot be combined with a literal
// wildcard, so the request origin is echoed instead.
func allowOrigin(cfg *config.CORSConfig, wildcard bool, origin string) string {
	if origin == "" {
		if wildcard {
			return "*"
		}
		return ""
	}
	if wildcard {
		if cfg.AllowCredentials {
			return origin
		}
		return "*"
	}
	if slices.Contains(cfg.AllowedOrigins, origin) {
		return origin
	}
	return ""
}
