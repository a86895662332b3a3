package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-grocer/internal/common"
)

// Handler enforces a ulule limiter rate before delegating to the next handler.
// Requests are keyed by client IP unless Key is set.
type Handler struct {
	Limiter *limiter.Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// New builds a Handler for a formatted rate such as "30-M".
func New(store limiter.Store, formatted string) (Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Handler{}, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	return Handler{Limiter: limiter.New(store, rate)}, nil
}

// Middleware implements the http.Handler middleware interface. Store failures let
// the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := common.ClientIP(r)
		if h.Key != nil {
			key = h.Key(r)
		}
		lctx, err := h.Limiter.Get(r.Context(), r.URL.Path+"|"+key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := int(time.Until(time.Unix(lctx.Reset, 0)).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again shortly.", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
