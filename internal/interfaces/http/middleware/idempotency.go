package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liuyulin-1024/payment-gateway/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// LockDuration is the time we hold the lock while processing
	LockDuration = 30 * time.Second
	// RetentionDuration is how long we keep the response
	RetentionDuration = 24 * time.Hour
)

var (
	redisGet   = redis.Get
	redisSet   = redis.Set
	redisSetNX = redis.SetNX
	redisDel   = redis.Del
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware ensures that a request carrying the same Idempotency-Key
// for the same app is processed at most once; later requests replay the first
// response verbatim instead of re-executing the handler.
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		// Scope by app so two apps never collide on the same header value.
		appID := c.GetString("app_id") // set by the app-key auth middleware
		storageKey := fmt.Sprintf("idempotency:%s:%s", appID, key)

		ctx := c.Request.Context()

		val, err := redisGet(ctx, storageKey)
		if err == nil {
			if val == "processing" {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code": "request_in_progress",
					"msg":  "a request with this idempotency key is already being processed",
					"data": nil,
				})
				return
			}

			// Stored as "<status>\n<body>"; replay both so retries see the exact
			// first response rather than a synthesized "already processed" message.
			status := http.StatusOK
			body := val
			if idx := strings.IndexByte(val, '\n'); idx >= 0 {
				if s, convErr := strconv.Atoi(val[:idx]); convErr == nil {
					status = s
					body = val[idx+1:]
				}
			}

			c.Header("Content-Type", "application/json")
			c.Header("X-Idempotency-Replayed", "true")
			c.String(status, body)
			c.Abort()
			return
		} else if err.Error() != "redis: nil" {
			// Redis unavailable: fail open rather than blocking payment creation.
			c.Next()
			return
		}

		// Acquire the lock. If we lose the race, the other request owns this key.
		acquired, err := redisSetNX(ctx, storageKey, "processing", LockDuration)
		if err != nil || !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code": "request_in_progress",
				"msg":  "a request with this idempotency key is already being processed",
				"data": nil,
			})
			return
		}

		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		if c.Writer.Status() >= 200 && c.Writer.Status() < 300 {
			stored := strconv.Itoa(c.Writer.Status()) + "\n" + w.body.String()
			_ = redisSet(ctx, storageKey, stored, RetentionDuration)
		} else {
			// Not a durable outcome; let the caller retry with the same key.
			_ = redisDel(ctx, storageKey)
		}
	}
}
