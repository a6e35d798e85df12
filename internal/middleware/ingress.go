package middleware

import (
	"fmt"
	"net/http"

	logpkg "github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const ingressKeyPrefix = "smaug_ingress"

// IngressRateLimit throttles callers by client IP before they reach the
// counters. rate uses the limiter format, e.g. "100-S". With a nil client
// the buckets are kept in process. Store failures let the request through.
func IngressRateLimit(client *redis.Client, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse ingress rate %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: ingressKeyPrefix})
		if err != nil {
			return nil, fmt.Errorf("create ingress limiter store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          ingressKeyPrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}

	instance := limiter.New(store, parsed)
	return func(next http.Handler) http.Handler {
		mw := stdlibmw.NewMiddleware(instance,
			stdlibmw.WithKeyGetter(request.ClientIP),
			stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
				respondErrorJSON(w, r, http.StatusTooManyRequests, "Too Many Requests", "Ingress rate limit exceeded", logger)
			}),
			stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				logger.Warn("ingress_limiter_unavailable",
					zap.String("error", logpkg.SanitizeError(err)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				)
				next.ServeHTTP(w, r)
			}),
		)
		return mw.Handler(next)
	}, nil
}
