package middleware

import (
	"net/http"
	"strings"

	"casebeam/internal/auth"
)

// Auth validates the session token and adds the user ID to the context.
// Revoked token ids are rejected.
func Auth(iss *auth.Issuer, revoked *auth.Revocations) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for public endpoints
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := auth.TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "authentication required")
				return
			}

			claims, err := iss.ParseToken(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			if revoked != nil && revoked.IsRevoked(claims.ID) {
				unauthorized(w, "session has been logged out")
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				unauthorized(w, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

func isPublicEndpoint(path string) bool {
	// Exact match paths
	exactPaths := []string{"/", "/healthz", "/api/auth/signup", "/api/auth/login"}
	for _, p := range exactPaths {
		if path == p {
			return true
		}
	}
	// Prefix match paths
	prefixPaths := []string{"/static/"}
	for _, p := range prefixPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
