package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/simplyinspect/permwatch/internal/pkg/errors"
	"github.com/simplyinspect/permwatch/internal/pkg/logger"
	"github.com/simplyinspect/permwatch/internal/pkg/utils"
)

// Recovery converts handler panics into 500 responses. Without it a panic
// in a capture or detection handler would tear down the whole connection.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				log.WithFields(map[string]interface{}{
					"panic":      v,
					"stack":      string(debug.Stack()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"request_id": GetRequestID(r),
				}).Error("Recovered from handler panic")

				// The panic value never reaches the client.
				utils.WriteError(w, errors.InternalError(
					"Internal server error",
					fmt.Errorf("panic: %v", v),
				))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
