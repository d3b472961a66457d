package httpx

import (
	"bytes"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20 // 10 MiB, per spec.md §4.I

// CORS sets permissive cross-origin headers; the platform has no
// cookie-based session to protect, so origin is not restricted.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, x-auth-token")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SecurityHeaders sets the baseline defensive headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// BodyLimit rejects request bodies over 10 MiB, per spec.md §4.I.
func BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	}
}

var scriptTagRe = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)

// Sanitize strips script tags, normalizes to valid UTF-8, and rejects
// null bytes from every string value bound by BindJSON later. It works
// on the raw body so handlers never see the unsanitized form.
func Sanitize() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(c.Request.Body); err != nil {
			Fail(c, http.StatusBadRequest, "could not read request body")
			return
		}
		raw := buf.String()
		if strings.ContainsRune(raw, 0) {
			Fail(c, http.StatusBadRequest, "null byte in request body")
			return
		}
		clean := scriptTagRe.ReplaceAllString(raw, "")
		clean = strings.Map(func(r rune) rune {
			if r == unicode.ReplacementChar {
				return -1
			}
			return r
		}, clean)
		c.Request.Body = newReadCloser(clean)
		c.Next()
	}
}

// RequestLog emits one structured log line per request after it completes.
func RequestLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// RateLimit rejects requests once key exceeds its tier's window quota.
// The general tier counts failed requests only (spec.md §4.I): a
// client only burns quota by erroring, so the check here peeks the
// count and the recording happens after the handler runs. Auth-like and
// heavy tiers count every attempt up front.
func RateLimit(limiter *SlidingWindowLimiter, failedOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !failedOnly {
			if !limiter.Allow(ip) {
				Fail(c, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			c.Next()
			return
		}

		if limiter.Count(ip) >= limiter.limit {
			Fail(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
		if c.Writer.Status() >= 400 {
			limiter.Record(ip)
		}
	}
}
