package app

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// apiKeyAuth requires a bearer key matching the bcrypt hash. An empty hash
// disables the check.
func apiKeyAuth(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashAPIKey returns the bcrypt hash to put in MARGINALIA_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
