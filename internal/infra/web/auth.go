package web

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"pesalink/internal/infra/logging"
)

// authMiddleware verifies an HS256 bearer token and places the business id
// (the subject claim) into the request context. Token issuance, roles, and
// TOTP live in the auth service; this layer only needs to know which tenant
// is calling.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		ctx := logging.WithBusinessID(r.Context(), sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
