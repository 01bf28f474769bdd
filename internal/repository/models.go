package repository

import "time"

// FileRecord はアップロードまたは変換処理によって作成されたファイルのメタデータです。
// filepath はストレージ層が管理する実体パスであり、APIレスポンスには含めません。
type FileRecord struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename"`
	Filepath    string     `json:"-"`
	ContentType *string    `json:"content_type,omitempty"`
	Size        *int64     `json:"size,omitempty"`
	OwnerID     int64      `json:"owner_id"`
	IsDeleted   bool       `json:"-"`
	DeletedAt   *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// User はアプリケーションの利用者アカウントです。
type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	HashedPassword string     `json:"-"`
	FullName       *string    `json:"full_name,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsSuperuser    bool       `json:"is_superuser"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
