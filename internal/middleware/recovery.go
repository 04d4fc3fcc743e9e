package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/brandloom/storefront/internal/errors"
	internalhttputil "github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

// Recovery turns handler panics into 500 responses.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.WithContext(r.Context()).WithFields(map[string]interface{}{
					"panic": fmt.Sprint(rec),
					"stack": string(debug.Stack()),
					"path":  r.URL.Path,
				}).Error("handler panic")
				internalhttputil.WriteError(w, r, errors.Internal("Internal server error", nil))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
