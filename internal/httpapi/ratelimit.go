package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// newCommandLimiter caps call commands per client IP over a sliding window.
// The same limiter guards the POST routes and websocket client_command
// messages, so both share one budget.
func newCommandLimiter(limit int, window time.Duration) *httprate.RateLimiter {
	if limit <= 0 {
		limit = 30
	}
	return httprate.NewRateLimiter(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many call commands, try again later")
		}),
	)
}

// allowCommand charges one command against the caller's budget. r is the
// websocket upgrade request, which carries the client address.
func (s *Server) allowCommand(r *http.Request) bool {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return false
	}
	return !s.commands.OnLimit(discardHeaders{}, r, key)
}

// discardHeaders absorbs the rate-limit headers OnLimit sets; there is no
// HTTP response to put them on mid-stream.
type discardHeaders struct{}

func (discardHeaders) Header() http.Header         { return http.Header{} }
func (discardHeaders) Write(b []byte) (int, error) { return len(b), nil }
func (discardHeaders) WriteHeader(int)             {}
