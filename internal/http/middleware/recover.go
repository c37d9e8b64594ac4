package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

const reloadPage = `<!doctype html>
<html lang="es"><head><meta charset="utf-8"><title>Algo salió mal</title></head>
<body><main><h1>Algo salió mal</h1>
<p>Ocurrió un error inesperado. <a href="javascript:location.reload()">Recargá la página</a> para intentar de nuevo.</p>
</main></body></html>`

// Recover turns a panic into a reload prompt: JSON for /api requests, an
// HTML page otherwise.
func Recover(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
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
				logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				if strings.HasPrefix(r.URL.Path, "/api/") {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"Ocurrió un error inesperado. Recargá la página.","reload":true}`))
					return
				}
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(reloadPage))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
