// Package pdf は画像からPDFへの変換と、複数PDFの結合を提供します。
package pdf

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/yourusername/paper-press/internal/repository"
	"github.com/yourusername/paper-press/internal/storage"
)

const pdfContentType = "application/pdf"

// FileStore はファイルメタデータの参照と登録に使用します。
// 通常はrepository.FileRepositoryを渡します。
type FileStore interface {
	GetByID(ctx context.Context, id int64) (*repository.FileRecord, error)
	Create(ctx context.Context, file *repository.FileRecord) error
}

// Service はPDF処理のビジネスロジックを提供します。
type Service struct {
	files   FileStore
	storage *storage.Storage
	logger  *log.Logger
}

// NewService はPDF処理サービスを作成します。
func NewService(files FileStore, st *storage.Storage, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{files: files, storage: st, logger: logger}
}

// pdfOutputName は拡張子を.pdfに置き換えたファイル名を返します。
func pdfOutputName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".pdf"
}

// classifyWriteError は出力書き込み時のエラーを分類します。
// OSレベルのパスエラーは入出力の問題として再試行可能、
// それ以外は入力内容の問題として恒久的な失敗とみなします。
func classifyWriteError(err error, contentMessage string) *Error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return newError(KindIO, "Failed to write output file", err)
	}
	return newError(KindContent, contentMessage, err)
}
