package auth

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey はサービスAPIキーを受け取るヘッダー名です。
const HeaderAPIKey = "X-Api-Key"

// RequireAPIKey は X-Api-Key を検証するミドルウェアを返します。
// 同じIPから連続して失敗するとしばらく 429 を返します。
func (m *Manager) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if retryAfter := m.checkLock(ip); retryAfter > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "TOO_MANY_ATTEMPTS",
				"message": "一定時間後に再度お試しください",
			})
			return
		}

		ok, err := m.Verify(c.GetHeader(HeaderAPIKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    "SERVER_MISCONFIGURATION",
				"message": err.Error(),
			})
			return
		}
		if !ok {
			remaining := m.recordFailure(ip)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":              "INVALID_API_KEY",
				"message":           "APIキーが正しくありません",
				"remainingAttempts": remaining,
			})
			return
		}

		m.resetAttempts(ip)
		c.Next()
	}
}
