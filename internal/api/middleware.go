package api

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// rateLimit bounds each caller (by IP) to perMinute requests per minute
// against this API, using a sliding-window counter. perMinute <= 0
// disables the limiter entirely.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}
