// Package auth は認証・認可機能を提供します。
//
// 認証はBearerトークン方式で、HS256で署名したJWTを発行します。
// パスワードはbcryptでハッシュ化して保存します。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/paper-press/internal/config"
	"github.com/yourusername/paper-press/internal/repository"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// tokenLeeway はトークン検証時に許容する時刻のずれです。
const tokenLeeway = time.Minute

var (
	// ErrInvalidToken はトークンが検証に失敗したことを示します。
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken はトークンの有効期限が切れたことを示します。
	ErrExpiredToken = errors.New("token expired")
)

// accessClaims はアクセストークンに含めるクレームです。
type accessClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	cfg    *config.Config
	users  repository.UserRepository
	logger *log.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, users repository.UserRepository, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:    cfg,
		users:  users,
		logger: logger,
	}
}

// CreateAccessToken はユーザーに対するアクセストークンを発行します。
func (m *Manager) CreateAccessToken(user *repository.User) (string, error) {
	now := time.Now()
	lifetime := time.Duration(m.cfg.AccessTokenExpireMinutes) * time.Minute

	claims := accessClaims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// parseAccessToken はトークンを検証してクレームを返します。
func (m *Manager) parseAccessToken(tokenString string) (*accessClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&accessClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(m.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(tokenLeeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword はパスワードをbcryptでハッシュ化します。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func verifyPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// EnsureSuperuser は設定された初期スーパーユーザーの存在を保証します。
// 未設定の場合は何もしません。既存ユーザーが一般権限の場合は昇格します。
func (m *Manager) EnsureSuperuser(ctx context.Context) error {
	email := m.cfg.FirstSuperuserEmail
	password := m.cfg.FirstSuperuserPassword
	if email == "" || password == "" {
		return nil
	}

	user, err := m.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to look up superuser: %w", err)
	}

	if user == nil {
		hashed, err := HashPassword(password)
		if err != nil {
			return err
		}
		username := m.cfg.FirstSuperuserUsername
		if username == "" {
			username = strings.SplitN(email, "@", 2)[0]
		}
		fullName := "Initial Superuser"
		user = &repository.User{
			Email:          email,
			Username:       username,
			HashedPassword: hashed,
			FullName:       &fullName,
			IsActive:       true,
			IsSuperuser:    true,
		}
		if err := m.users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create superuser: %w", err)
		}
		m.logger.Printf("created superuser %s", user.Email)
		return nil
	}

	if !user.IsSuperuser {
		if err := m.users.PromoteSuperuser(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to promote superuser: %w", err)
		}
		m.logger.Printf("promoted user %s to superuser", user.Email)
	}
	return nil
}
