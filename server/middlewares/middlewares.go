package middlewares

import (
	"github.com/gin-gonic/gin"
)

/*

Attribution extracts who performed the request.

Token verification happens upstream (the auth gateway verifies the bearer
token and injects X-Member-Id); this middleware only lifts the identity
and the anonymous fallback keys (device id, session id, client IP) into
the gin context so handlers never parse headers themselves.

*/

const (
	memberIdHeader  = "X-Member-Id"
	deviceIdHeader  = "X-Device-Id"
	sessionIdHeader = "X-Session-Id"

	MemberIdKey  = "member_id"
	DeviceIdKey  = "device_id"
	SessionIdKey = "session_id"
)

func Attribution() gin.HandlerFunc {
	return func(c *gin.Context) {
		if memberId := c.GetHeader(memberIdHeader); memberId != "" {
			c.Set(MemberIdKey, memberId)
		}
		if deviceId := c.GetHeader(deviceIdHeader); deviceId != "" {
			c.Set(DeviceIdKey, deviceId)
		}
		if sessionId := c.GetHeader(sessionIdHeader); sessionId != "" {
			c.Set(SessionIdKey, sessionId)
		}
		c.Next()
	}
}

// MemberId returns the authenticated member id, empty for anonymous
// requests.
func MemberId(c *gin.Context) string {
	return c.GetString(MemberIdKey)
}

func DeviceId(c *gin.Context) string {
	return c.GetString(DeviceIdKey)
}

func SessionId(c *gin.Context) string {
	return c.GetString(SessionIdKey)
}
