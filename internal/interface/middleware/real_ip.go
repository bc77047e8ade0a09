package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/pixsearch-identity/pkg/response"
)

const CtxRealIPKey = "real_ip"

// RealIP stores the client address under real_ip for logging.
// Priority: CF-Connecting-IP, then the left-most X-Forwarded-For entry, then c.ClientIP().
// Both headers are client-controlled; never authorize on this value.
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxRealIPKey, resolveIP(c))
		c.Next()
	}
}

func resolveIP(c *gin.Context) string {
	if cf := strings.TrimSpace(c.GetHeader("CF-Connecting-IP")); cf != "" {
		if ip := net.ParseIP(cf); ip != nil {
			return ip.String()
		}
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return c.ClientIP()
}

// ClientIP returns the address RealIP resolved, or Gin's view when RealIP did not run.
func ClientIP(c *gin.Context) string {
	if ip := c.GetString(CtxRealIPKey); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// PrivateNetworkOnly rejects callers outside loopback and private ranges.
// It guards operational endpoints such as /metrics. The address comes from
// c.ClientIP(), which only honours forwarding headers set by the engine's
// trusted proxies.
func PrivateNetworkOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !(ip.IsLoopback() || ip.IsPrivate()) {
			response.Fail(c, http.StatusForbidden, "forbidden", nil)
			return
		}
		c.Next()
	}
}
