package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wudi/portway/internal/errors"
	"github.com/wudi/portway/internal/logging"
)

// Recovery converts handler panics into a 500 JSON response
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)

					errors.ErrInternal.
						WithDetail(fmt.Sprintf("panic: %v", rec)).
						WriteJSON(w)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
