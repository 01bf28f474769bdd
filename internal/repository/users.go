package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// userColumns はusersテーブルのSELECT用カラムリストです。
const userColumns = `id, email, username, hashed_password, full_name,
	is_active, is_superuser, last_login, created_at, updated_at`

// UserRepository はユーザーアカウントへのアクセスを提供します。
type UserRepository interface {
	// Create はユーザーを作成します。メールアドレスまたはユーザー名が
	// 既に存在する場合はErrDuplicateを返します。
	Create(ctx context.Context, user *User) error
	// GetByID はIDでユーザーを取得します。
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByEmail はメールアドレスでユーザーを取得します。
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByLogin はユーザー名またはメールアドレスでユーザーを取得します。
	GetByLogin(ctx context.Context, login string) (*User, error)
	// UpdateLastLogin は最終ログイン日時を現在時刻に更新します。
	UpdateLastLogin(ctx context.Context, id int64) error
	// PromoteSuperuser は既存ユーザーにスーパーユーザー権限を付与します。
	PromoteSuperuser(ctx context.Context, id int64) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository はユーザーリポジトリを作成します。
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, username, hashed_password, full_name, is_active, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		user.Email, user.Username, user.HashedPassword, user.FullName,
		user.IsActive, user.IsSuperuser,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.getOne(ctx, query, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return r.getOne(ctx, query, email)
}

func (r *userRepo) GetByLogin(ctx context.Context, login string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1 OR email = $1`, userColumns)
	return r.getOne(ctx, query, login)
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id int64) error {
	query := `UPDATE users SET last_login = now(), updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) PromoteSuperuser(ctx context.Context, id int64) error {
	query := `UPDATE users SET is_superuser = TRUE, updated_at = now() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to promote superuser: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.FullName,
		&u.IsActive, &u.IsSuperuser, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
