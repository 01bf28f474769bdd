package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/repository"
)

// RequireUser はBearerトークンを検証するミドルウェアを返します。
// 検証に成功するとユーザーをコンテキストに格納します。
func (m *Manager) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}

		claims, err := m.parseAccessToken(token)
		if err != nil {
			code := "INVALID_TOKEN"
			message := "トークンが無効です"
			if errors.Is(err, ErrExpiredToken) {
				code = "TOKEN_EXPIRED"
				message = "トークンの有効期限が切れました"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    code,
				"message": message,
			})
			return
		}

		user, err := m.users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code":    "INVALID_TOKEN",
					"message": "トークンが無効です",
				})
				return
			}
			m.logger.Printf("failed to resolve user userId=%d: %v", claims.UserID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ユーザー情報の取得に失敗しました",
			})
			return
		}

		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "INACTIVE_USER",
				"message": "このアカウントは無効化されています",
			})
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser はミドルウェアが格納したユーザーを取り出します。
func CurrentUser(c *gin.Context) (*repository.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*repository.User)
	return user, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
