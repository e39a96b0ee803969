package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
	corsMaxAge  = "86400"
)

// corsPolicy decides which Origin a response may be shared with.
type corsPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newCORSPolicy(spec string) corsPolicy {
	p := corsPolicy{allowed: make(map[string]struct{})}
	for _, o := range strings.Split(spec, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[o] = struct{}{}
		}
	}
	if len(p.allowed) == 0 {
		p.any = true
	}
	return p
}

// origin returns the Access-Control-Allow-Origin value for a request origin,
// or "" when the origin is not allowed.
func (p corsPolicy) origin(requested string) string {
	if p.any {
		return "*"
	}
	if _, ok := p.allowed[requested]; ok {
		return requested
	}
	return ""
}

// CORS shares admin API responses with the configured origins: "*" or a
// comma-separated list such as CORS_ALLOWED_ORIGINS. OPTIONS requests end
// here with 204.
func CORS(origins string) gin.HandlerFunc {
	p := newCORSPolicy(origins)
	return func(c *gin.Context) {
		if allow := p.origin(c.GetHeader("Origin")); allow != "" {
			h := c.Writer.Header()
			if !p.any {
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Origin", allow)
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
