package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/auth"
	"github.com/yourusername/paper-press/internal/repository"
	"github.com/yourusername/paper-press/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// resolveOwnedFile はパスパラメータのファイルを取得し、所有権を確認します。
// エラー時はレスポンスを書き込み済みのため、呼び出し側はそのまま戻ります。
func resolveOwnedFile(c *gin.Context, files repository.FileRepository) (*repository.FileRecord, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "ログインが必要です",
		})
		return nil, false
	}

	fileID, err := strconv.ParseInt(c.Param("file_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "file_id は整数で指定してください。",
		})
		return nil, false
	}

	record, err := files.GetByID(c.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "NOT_FOUND",
				"message": fmt.Sprintf("File with ID %d not found", fileID),
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ファイル情報の取得に失敗しました。",
		})
		return nil, false
	}

	if record.OwnerID != user.ID && !user.IsSuperuser {
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "FORBIDDEN",
			"message": fmt.Sprintf("Not authorized to access file with ID %d", fileID),
		})
		return nil, false
	}

	return record, true
}

// fileDownloadHandler は GET /files/:file_id のハンドラーです。
// 保存済みファイルを添付ファイルとして返します。
func fileDownloadHandler(files repository.FileRepository, st *storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := resolveOwnedFile(c, files)
		if !ok {
			return
		}

		file, err := st.Open(record.Filepath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// レコードはあるが実体が失われている
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "NOT_FOUND",
					"message": fmt.Sprintf("File with ID %d not found", record.ID),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイルの読み込みに失敗しました。",
			})
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイルの読み込みに失敗しました。",
			})
			return
		}

		contentType := "application/octet-stream"
		if record.ContentType != nil && *record.ContentType != "" {
			contentType = *record.ContentType
		}

		encodedName := url.PathEscape(record.Filename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", record.Filename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
	}
}

// fileListHandler は GET /files のハンドラーです。
// 一般ユーザーは自分のファイルのみ、スーパーユーザーは全ファイルを参照できます。
func fileListHandler(files repository.FileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}

		skip, err := parseListParam(c.DefaultQuery("skip", "0"), 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "skip は0以上の整数で指定してください。",
			})
			return
		}
		limit, err := parseListParam(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)), 1)
		if err != nil || limit > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": fmt.Sprintf("limit は1以上%d以下の整数で指定してください。", maxListLimit),
			})
			return
		}

		var records []*repository.FileRecord
		if user.IsSuperuser {
			records, err = files.ListAll(c.Request.Context(), skip, limit)
		} else {
			records, err = files.ListByOwner(c.Request.Context(), user.ID, skip, limit)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイル一覧の取得に失敗しました。",
			})
			return
		}

		if records == nil {
			records = []*repository.FileRecord{}
		}
		c.JSON(http.StatusOK, records)
	}
}

// fileDeleteHandler は DELETE /files/:file_id のハンドラーです。
// レコードを論理削除します。実体ファイルは残ります。
func fileDeleteHandler(files repository.FileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := resolveOwnedFile(c, files)
		if !ok {
			return
		}

		if err := files.SoftDelete(c.Request.Context(), record.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "NOT_FOUND",
					"message": fmt.Sprintf("File with ID %d not found", record.ID),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ファイルの削除に失敗しました。",
			})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func parseListParam(value string, min int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < min {
		return 0, fmt.Errorf("value %d below minimum %d", n, min)
	}
	return n, nil
}
