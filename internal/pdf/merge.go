package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/paper-press/internal/repository"
)

// CheckMergeInputs は結合対象ファイルの存在と所有権を検証します。
// タスク投入前の同期チェックとして使用します。スーパーユーザーは
// 他ユーザーのファイルも結合できます。
func (s *Service) CheckMergeInputs(ctx context.Context, fileIDs []int64, ownerID int64, superuser bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(fileIDs) == 0 {
		return newError(KindValidation, "No files provided to merge.", nil)
	}

	for _, id := range fileIDs {
		record, err := s.files.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return newError(KindNotFound, fmt.Sprintf("File with ID %d not found", id), nil)
			}
			return fmt.Errorf("failed to load file record: %w", err)
		}
		if !superuser && record.OwnerID != ownerID {
			return newError(KindForbidden, fmt.Sprintf("Not authorized to access file with ID %d", id), nil)
		}
	}
	return nil
}

// MergePDFs は複数のPDFを1つに結合し、新しいファイルレコードを作成して
// 返します。結合後のページ順はfileIDsの順序と一致します。出力ファイル名が
// 既存ファイルと重なる場合は name_1.pdf のように連番を付けます。
func (s *Service) MergePDFs(ctx context.Context, fileIDs []int64, outputFilename string, ownerID int64, superuser bool) (_ *repository.FileRecord, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(fileIDs) == 0 {
		return nil, newError(KindValidation, "No files provided to merge.", nil)
	}
	if strings.TrimSpace(outputFilename) == "" {
		return nil, newError(KindValidation, "Output filename is required.", nil)
	}

	name := outputFilename
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}

	inputs := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := s.files.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, newError(KindNotFound, fmt.Sprintf("File with ID %d not found", id), nil)
			}
			return nil, fmt.Errorf("failed to load file record: %w", err)
		}
		if !strings.HasSuffix(strings.ToLower(record.Filepath), ".pdf") {
			return nil, newError(KindContent, fmt.Sprintf("File with ID %d is not a PDF", id), nil)
		}
		if !superuser && record.OwnerID != ownerID {
			return nil, newError(KindForbidden, fmt.Sprintf("Not authorized to access file with ID %d", id), nil)
		}
		// 結合は一括処理のため、壊れた入力はここで個別に検出して
		// 対象のIDをエラーに含める
		if err := pdfapi.ValidateFile(record.Filepath, nil); err != nil {
			return nil, newError(KindContent, fmt.Sprintf("Error reading file %d: %v", id, err), err)
		}
		inputs = append(inputs, record.Filepath)
	}

	outputPath, actualName, err := s.storage.UniqueOutputPath(ownerID, name)
	if err != nil {
		return nil, newError(KindIO, "Failed to prepare output location", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 入力順がそのままページ順になる
	if err := pdfapi.MergeCreateFile(inputs, outputPath, false, nil); err != nil {
		_ = s.storage.Remove(outputPath)
		return nil, classifyWriteError(err, fmt.Sprintf("Failed to merge PDFs: %v", err))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		_ = s.storage.Remove(outputPath)
		return nil, newError(KindIO, "Failed to stat output file", err)
	}

	size := info.Size()
	contentType := pdfContentType
	result := &repository.FileRecord{
		Filename:    actualName,
		Filepath:    outputPath,
		ContentType: &contentType,
		Size:        &size,
		OwnerID:     ownerID,
	}
	if err := s.files.Create(ctx, result); err != nil {
		_ = s.storage.Remove(outputPath)
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	s.logger.Printf("merged %d pdfs output=%s size=%d", len(inputs), actualName, size)
	return result, nil
}
