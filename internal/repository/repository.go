// Package repository はPostgreSQLへのデータアクセス層を提供します。
// すべてのクエリはpgxによる素のSQLで記述し、ORMは使用しません。
// DBTXを受け取ることで、プールとトランザクションのどちらでも利用できます。
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound はレコードが存在しない場合に返されるエラーです。
var ErrNotFound = errors.New("record not found")

// ErrDuplicate は一意制約に違反した場合に返されるエラーです。
var ErrDuplicate = errors.New("record already exists")

// DBTX はSQLクエリを実行するためのインターフェースです。
// *pgxpool.Pool と pgx.Tx の両方が満たします。
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation はPostgreSQLの一意制約違反 (SQLSTATE 23505) を判定します。
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
