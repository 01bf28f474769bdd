package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// fileColumns はfilesテーブルのSELECT用カラムリストです。
const fileColumns = `id, filename, filepath, content_type, size, owner_id,
	is_deleted, deleted_at, created_at, updated_at`

// FileRepository はファイルメタデータへのアクセスを提供します。
// 論理削除済みのレコードは取得系の操作から常に除外されます。
type FileRepository interface {
	// Create はファイルレコードを作成し、採番されたIDとタイムスタンプを反映します。
	Create(ctx context.Context, file *FileRecord) error
	// GetByID はIDでファイルを取得します。存在しない場合はErrNotFoundを返します。
	GetByID(ctx context.Context, id int64) (*FileRecord, error)
	// ListByOwner は指定した所有者のファイルを作成日時の降順で返します。
	ListByOwner(ctx context.Context, ownerID int64, skip, limit int) ([]*FileRecord, error)
	// ListAll は全ユーザーのファイルを作成日時の降順で返します（スーパーユーザー用）。
	ListAll(ctx context.Context, skip, limit int) ([]*FileRecord, error)
	// SoftDelete はファイルを論理削除します。
	SoftDelete(ctx context.Context, id int64) error
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository はファイルリポジトリを作成します。
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) Create(ctx context.Context, file *FileRecord) error {
	query := `
		INSERT INTO files (filename, filepath, content_type, size, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		file.Filename, file.Filepath, file.ContentType, file.Size, file.OwnerID,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id int64) (*FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1 AND is_deleted = FALSE`, fileColumns)

	f := &FileRecord{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.Filename, &f.Filepath, &f.ContentType, &f.Size, &f.OwnerID,
		&f.IsDeleted, &f.DeletedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (r *fileRepo) ListByOwner(ctx context.Context, ownerID int64, skip, limit int) ([]*FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE owner_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, fileColumns)

	rows, err := r.db.Query(ctx, query, ownerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (r *fileRepo) ListAll(ctx context.Context, skip, limit int) ([]*FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, fileColumns)

	rows, err := r.db.Query(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (r *fileRepo) SoftDelete(ctx context.Context, id int64) error {
	query := `
		UPDATE files
		SET is_deleted = TRUE, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND is_deleted = FALSE`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFiles(rows pgx.Rows) ([]*FileRecord, error) {
	var result []*FileRecord
	for rows.Next() {
		f := &FileRecord{}
		if err := rows.Scan(
			&f.ID, &f.Filename, &f.Filepath, &f.ContentType, &f.Size, &f.OwnerID,
			&f.IsDeleted, &f.DeletedAt, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	return result, nil
}
