// Package storage はローカルファイルシステム上のファイル保存領域を管理します。
//
// アップロードされたファイルは一時領域のランダムなサブディレクトリ
// (tempDir/<トークン>/<ファイル名>) に、処理結果は所有者ごとのディレクトリ
// (uploadDir/<所有者ID>/<ファイル名>) に配置されます。
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Storage はファイルの保存・取得・削除を提供します。
type Storage struct {
	uploadDir string
	tempDir   string
}

// New はストレージを初期化し、ベースディレクトリを作成します。
func New(uploadDir, tempDir string) (*Storage, error) {
	for _, dir := range []string{uploadDir, tempDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
		}
	}
	return &Storage{uploadDir: uploadDir, tempDir: tempDir}, nil
}

// SaveTemp はアップロード内容を一時領域の専用サブディレクトリに保存します。
// サブディレクトリ名にランダムなトークンを使うため、同名ファイルの
// 同時アップロードでも衝突しません。保存したパスとサイズを返します。
func (s *Storage) SaveTemp(filename string, r io.Reader) (string, int64, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return "", 0, err
	}

	dir := filepath.Join(s.tempDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("failed to create temp dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", 0, fmt.Errorf("failed to write temp file: %w", err)
	}

	return path, size, nil
}

// OwnerDir は所有者ごとの保存先ディレクトリを作成して返します。
func (s *Storage) OwnerDir(ownerID int64) (string, error) {
	dir := filepath.Join(s.uploadDir, strconv.FormatInt(ownerID, 10))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create owner dir: %w", err)
	}
	return dir, nil
}

// OutputPath は所有者ディレクトリ内の出力先パスを返します。
// 同名ファイルが既に存在する場合は上書きされます。
func (s *Storage) OutputPath(ownerID int64, filename string) (string, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	dir, err := s.OwnerDir(ownerID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// UniqueOutputPath は所有者ディレクトリ内で既存ファイルと衝突しない
// 出力先パスを返します。同名ファイルが存在する場合は name_1.pdf,
// name_2.pdf のように連番を付けます。実際に使われたファイル名も返します。
func (s *Storage) UniqueOutputPath(ownerID int64, filename string) (string, string, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return "", "", err
	}
	dir, err := s.OwnerDir(ownerID)
	if err != nil {
		return "", "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	path := filepath.Join(dir, name)

	for counter := 1; ; counter++ {
		_, statErr := os.Stat(path)
		if errors.Is(statErr, fs.ErrNotExist) {
			return path, name, nil
		}
		if statErr != nil {
			return "", "", fmt.Errorf("failed to check output path: %w", statErr)
		}
		name = fmt.Sprintf("%s_%d%s", stem, counter, ext)
		path = filepath.Join(dir, name)
	}
}

// Open は保存済みファイルを読み取り用に開きます。
func (s *Storage) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Remove は保存済みファイルを削除します。存在しない場合は何もしません。
func (s *Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// RemoveTempDir は一時ファイルを格納しているサブディレクトリごと削除します。
// SaveTempが返したパスに対してのみ使用します。
func (s *Storage) RemoveTempDir(path string) {
	dir := filepath.Dir(path)
	// ベースディレクトリ自体は消さない
	if dir == s.tempDir || dir == "." || dir == string(filepath.Separator) {
		return
	}
	_ = os.RemoveAll(dir)
}

// sanitizeFilename はパス区切りを含まない安全なファイル名に正規化します。
func sanitizeFilename(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	return name, nil
}
