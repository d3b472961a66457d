// Package httpx is the HTTP edge of spec.md §4.I: the uniform response
// envelope, declarative field validator, and the gin middleware chain
// (CORS, security headers, sanitization, rate limiting, auth, role
// checks) every route runs through in a fixed order. Adapted from the
// teacher's internal/gateway and cloudvault's internal/middleware,
// generalized from tradeengine's order-domain routes and cloudvault's
// per-IP limiters to this platform's routes.
package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform shape of spec.md §4.I: "the only shape
// clients observe; internal exceptions are translated here."
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Status  int         `json:"status"`
}

// OK writes a successful envelope.
func OK(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: message, Status: status})
}

// Fail writes a failure envelope and aborts the gin context so no
// further handler can write to the response.
func Fail(c *gin.Context, status int, errMsg string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Error: errMsg, Status: status})
}
