package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// RateLimitMiddleware limits requests per client IP. rate uses the limiter
// format "<limit>-<period>", e.g. "120-M".
func RateLimitMiddleware(rate string, logger *zap.Logger) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", rate, err)
	}
	instance := limiter.New(memory.NewStore(), r)

	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			logger.Warn("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("endpoint", c.Request.URL.Path))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":  http.StatusTooManyRequests,
				"msg":   "too many requests, limit is " + strconv.FormatInt(r.Limit, 10) + " per " + r.Period.String(),
				"error": "RATE_LIMIT_EXCEEDED",
			})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.Error("rate limiter failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "msg": err.Error()})
		}),
	), nil
}
