package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/axion-mining/fleet-optimizer/internal/metrics"
)

// rateLimiter admits a request or reports how long the caller should back off.
type rateLimiter interface {
	Admit() (ok bool, retryAfter time.Duration)
}

// unthrottledPaths stay reachable for health checks and scrapes while the
// optimizer endpoints are saturated.
var unthrottledPaths = map[string]bool{
	"/api/health": true,
	"/metrics":    true,
}

type tokenBucket struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (b *tokenBucket) Admit() (bool, time.Duration) {
	now := time.Now()
	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - b.limiter.TokensAt(now)
	return false, time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second))
}

// retryAfterSeconds rounds up so clients never retry before a token is back.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unthrottledPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := limiter.Admit()
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		metrics.ThrottledRequests.Inc()
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		writeError(w, http.StatusTooManyRequests,
			"Too many optimization requests",
			"request rate exceeds the configured limit",
			"retry after the number of seconds in the Retry-After header",
		)
	})
}
