package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/starter/pkg/metricsx"
	"github.com/aussiebroadwan/starter/pkg/ratelimit"
	"github.com/aussiebroadwan/starter/pkg/slogx"
	"golang.org/x/time/rate"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, path, subject).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	// Left-most X-Forwarded-For entry is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// PathKeyExtractor keys on the request path.
func PathKeyExtractor(r *http.Request) string {
	return r.URL.Path
}

// SubjectKeyExtractor extracts the authenticated subject from the request
// context. Returns empty string if the request is anonymous.
func SubjectKeyExtractor(r *http.Request) string {
	sub, _ := SubjectFromContext(r.Context())
	return sub
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", IPKeyExtractor, PathKeyExtractor)
// would produce keys like "192.168.1.1:/v1/auth/login"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// DefaultKeyExtractor buckets requests by client IP and path.
var DefaultKeyExtractor = CompositeKeyExtractor(":", IPKeyExtractor, PathKeyExtractor)

// RateLimitMiddleware admits requests through limiter. Paths equal to, or
// nested under, any of exempt bypass the limiter entirely. Backend failures
// fail open.
func RateLimitMiddleware(limiter ratelimit.Limiter, keyExtractor KeyExtractor, exempt ...string) Middleware {
	if keyExtractor == nil {
		keyExtractor = DefaultKeyExtractor
	}
	denials := &rate.Sometimes{First: 10, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(ctx, key)
			if err != nil {
				metricsx.RateLimitDecisions.WithLabelValues("error").Inc()
				log.Error("rate limit backend failed, allowing request", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			reset := strconv.Itoa(res.ResetSeconds())
			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
			w.Header().Set(HeaderRateLimitReset, reset)

			if !res.Allowed {
				metricsx.RateLimitDecisions.WithLabelValues("denied").Inc()
				denials.Do(func() {
					log.Warn("rate limit exceeded",
						"key", key,
						"endpoint", r.URL.Path,
						"retry_after", reset,
					)
				})

				w.Header().Set(HeaderRetryAfter, reset)
				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests. Please try again later.",
				})
				return
			}

			metricsx.RateLimitDecisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func isExempt(path string, exempt []string) bool {
	for _, p := range exempt {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
