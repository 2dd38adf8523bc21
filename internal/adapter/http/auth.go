package http

import (
	"crypto/subtle"
	"net/http"
)

const apiKeyHeader = "X-API-Key"

// requireAPIKey guards admin routes. Without configured keys every admin
// request is refused.
func requireAPIKey(keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(keys) == 0 {
				writeError(w, http.StatusForbidden, "admin API is disabled")
				return
			}
			got := r.Header.Get(apiKeyHeader)
			if got == "" {
				writeError(w, http.StatusUnauthorized, "missing "+apiKeyHeader+" header")
				return
			}
			if !validKey(keys, got) {
				writeError(w, http.StatusForbidden, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(keys []string, got string) bool {
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(got), []byte(k)) == 1 {
			ok = true
		}
	}
	return ok
}
