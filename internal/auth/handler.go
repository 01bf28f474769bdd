package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/repository"
)

type registerRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Username string  `json:"username" binding:"required,min=3,max=50"`
	Password string  `json:"password" binding:"required,min=8"`
	FullName *string `json:"full_name" binding:"omitempty,max=100"`
}

// Register は POST /auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email、username、password を正しい形式で送ってください",
		})
		return
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		m.logger.Printf("failed to hash password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ユーザーの登録に失敗しました",
		})
		return
	}

	user := &repository.User{
		Email:          req.Email,
		Username:       req.Username,
		HashedPassword: hashed,
		FullName:       req.FullName,
		IsActive:       true,
	}
	if err := m.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "DUPLICATE_USER",
				"message": "そのメールアドレスまたはユーザー名は既に使われています",
			})
			return
		}
		m.logger.Printf("failed to create user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ユーザーの登録に失敗しました",
		})
		return
	}

	m.logger.Printf("user registered userId=%d username=%s", user.ID, user.Username)
	c.JSON(http.StatusCreated, user)
}

// Login は POST /auth/login/access-token のハンドラーです。
// OAuth2のパスワードフローに合わせ、フォームフィールドの username と
// password を受け取ります。username にはメールアドレスも指定できます。
func (m *Manager) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password をフォームで送ってください",
		})
		return
	}

	user, err := m.users.GetByLogin(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_CREDENTIALS",
				"message": "ユーザー名またはパスワードが正しくありません",
			})
			return
		}
		m.logger.Printf("failed to look up user login=%s: %v", username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ログイン処理に失敗しました",
		})
		return
	}

	if !verifyPassword(user.HashedPassword, password) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_CREDENTIALS",
			"message": "ユーザー名またはパスワードが正しくありません",
		})
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INACTIVE_USER",
			"message": "このアカウントは無効化されています",
		})
		return
	}

	if err := m.users.UpdateLastLogin(c.Request.Context(), user.ID); err != nil {
		// ログイン自体は成立しているため記録失敗はログに留める
		m.logger.Printf("failed to update last login userId=%d: %v", user.ID, err)
	}

	token, err := m.CreateAccessToken(user)
	if err != nil {
		m.logger.Printf("failed to create access token userId=%d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "トークンの発行に失敗しました",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// Me は GET /auth/me のハンドラーです。
func (m *Manager) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "ログインが必要です",
		})
		return
	}
	c.JSON(http.StatusOK, user)
}
