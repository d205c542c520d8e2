package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/rizz_server/internal/pkg/jwt"
	"github.com/qs3c/rizz_server/internal/pkg/response"
)

const (
	UserIDKey = "userID"
)

var (
	errMissingToken = errors.New("请提供认证信息")
	errTokenFormat  = errors.New("认证格式错误")
)

// bearerToken 取出 Authorization: Bearer 后的令牌
func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errMissingToken
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", errTokenFormat
	}
	return token, nil
}

// Auth 要求登录用户。前面的 OptionalAuth 已解析出用户时直接放行
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); ok {
			c.Next()
			return
		}

		token, err := bearerToken(c)
		if err != nil {
			response.AuthError(c, err.Error())
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(token, jwtSecret)
		if err != nil || claims.UserID == "" {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// OptionalAuth 有合法令牌时写入用户 ID，否则按访客继续
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := bearerToken(c); err == nil {
			if claims, err := jwt.ParseToken(token, jwtSecret); err == nil {
				c.Set(UserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID，访客返回 false
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}
