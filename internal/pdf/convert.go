package pdf

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/paper-press/internal/repository"
)

// SaveUploadedImage はアップロードされた画像を一時領域に保存し、
// ファイルレコードを作成します。宣言されたContent-Typeが画像でない場合は
// 何も保存せずにエラーを返します。
func (s *Service) SaveUploadedImage(ctx context.Context, file *multipart.FileHeader, ownerID int64) (_ *repository.FileRecord, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError(KindValidation, "画像ファイルを選択してください。", nil)
	}

	declared := file.Header.Get("Content-Type")
	if !strings.HasPrefix(declared, "image/") {
		return nil, newError(KindValidation, "画像ファイルのみアップロードできます。", nil)
	}

	src, err := file.Open()
	if err != nil {
		return nil, newError(KindIO, "アップロードファイルの読み込みに失敗しました。", err)
	}
	defer src.Close()

	path, size, err := s.storage.SaveTemp(file.Filename, src)
	if err != nil {
		return nil, newError(KindIO, "ファイルの保存に失敗しました。", err)
	}

	record := &repository.FileRecord{
		Filename:    filepath.Base(path),
		Filepath:    path,
		ContentType: &declared,
		Size:        &size,
		OwnerID:     ownerID,
	}
	if err := s.files.Create(ctx, record); err != nil {
		s.storage.RemoveTempDir(path)
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	return record, nil
}

// ConvertImageToPDF は画像ファイルをPDFへ変換し、新しいファイルレコードを
// 作成して返します。出力ファイル名は元のファイル名の拡張子を.pdfに
// 置き換えたものになります。
func (s *Service) ConvertImageToPDF(ctx context.Context, fileID, ownerID int64) (_ *repository.FileRecord, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, fmt.Sprintf("File with id %d not found.", fileID), nil)
		}
		return nil, fmt.Errorf("failed to load file record: %w", err)
	}

	// 宣言ではなく実際のバイト列で画像であることを確認する
	mtype, err := mimetype.DetectFile(record.Filepath)
	if err != nil {
		return nil, newError(KindIO, fmt.Sprintf("Failed to read file with id %d", fileID), err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, newError(KindContent, fmt.Sprintf("File with id %d is not an image", fileID), nil)
	}

	outputName := pdfOutputName(record.Filename)
	outputPath, err := s.storage.OutputPath(ownerID, outputName)
	if err != nil {
		return nil, newError(KindIO, "Failed to prepare output location", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := pdfapi.ImportImagesFile([]string{record.Filepath}, outputPath, nil, nil); err != nil {
		_ = s.storage.Remove(outputPath)
		return nil, classifyWriteError(err, fmt.Sprintf("Failed to convert image to PDF: %v", err))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		_ = s.storage.Remove(outputPath)
		return nil, newError(KindIO, "Failed to stat output file", err)
	}

	size := info.Size()
	contentType := pdfContentType
	result := &repository.FileRecord{
		Filename:    outputName,
		Filepath:    outputPath,
		ContentType: &contentType,
		Size:        &size,
		OwnerID:     ownerID,
	}
	if err := s.files.Create(ctx, result); err != nil {
		_ = s.storage.Remove(outputPath)
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	s.logger.Printf("converted image to pdf fileId=%d output=%s size=%d", fileID, outputName, size)
	return result, nil
}
