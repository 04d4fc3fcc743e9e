package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/brandloom/storefront/internal/errors"
	internalhttputil "github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

// RequireHeaderToken rejects requests whose header does not equal token.
// An empty token rejects everything.
func RequireHeaderToken(header, token string, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.LogSecurityEvent(r.Context(), "webhook_token_rejected", map[string]interface{}{
					"path":   r.URL.Path,
					"header": header,
				})
				internalhttputil.WriteError(w, r, errors.Unauthorized("Invalid webhook token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
