package middleware

import (
	"net/http"
	"strings"
)

// TokenValidator resolves a bearer token to a user id; ok is false for
// unknown or revoked tokens.
type TokenValidator func(token string) (userID int64, ok bool)

// TokenAuth rejects requests without a valid bearer token and stores the
// resolved user id in the request context.
func TokenAuth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, ok := validate(token)
			if !ok {
				http.Error(w, `{"success":false,"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
