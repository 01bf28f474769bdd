package pdf

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/auth"
	"github.com/yourusername/paper-press/internal/repository"
)

// Uploader は画像アップロードの検証と保存を提供します。
type Uploader interface {
	SaveUploadedImage(ctx context.Context, file *multipart.FileHeader, ownerID int64) (*repository.FileRecord, error)
}

// MergeChecker は結合対象ファイルの事前検証を提供します。
type MergeChecker interface {
	CheckMergeInputs(ctx context.Context, fileIDs []int64, ownerID int64, superuser bool) error
}

// Scheduler はタスクを非同期キューに投入するためのインターフェースです。
type Scheduler interface {
	SubmitConvert(ctx context.Context, fileID, ownerID int64) (string, error)
	SubmitMerge(ctx context.Context, fileIDs []int64, outputFilename string, ownerID int64, superuser bool) (string, error)
}

// UploadImageHandler は POST /files/upload-image のハンドラーを返します。
// 画像を検証・保存した上で変換タスクを投入し、202でタスクIDを返します。
func UploadImageHandler(svc Uploader, scheduler Scheduler, maxFileSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "画像ファイルを選択してください。",
			})
			return
		}

		if maxFileSize > 0 && file.Size > maxFileSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    "LIMIT_EXCEEDED",
				"message": "ファイルサイズが上限を超えています。",
			})
			return
		}

		record, err := svc.SaveUploadedImage(c.Request.Context(), file, user.ID)
		if err != nil {
			respondWithError(c, err)
			return
		}

		taskID, err := scheduler.SubmitConvert(c.Request.Context(), record.ID, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "TASK_SUBMIT_FAILED",
				"message": "変換タスクの投入に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"file_id": record.ID,
		})
	}
}

type mergeRequest struct {
	FileIDs        []int64 `json:"file_ids" binding:"required"`
	OutputFilename string  `json:"output_filename" binding:"required"`
}

// MergeHandler は POST /pdfs/merge のハンドラーを返します。
// 投入前に全対象ファイルの存在と所有権を同期的に検証し、問題があれば
// タスクを作らずに404/403で応答します。
func MergeHandler(svc MergeChecker, scheduler Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}

		var req mergeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "file_ids と output_filename を JSON で送ってください。",
			})
			return
		}

		if err := svc.CheckMergeInputs(c.Request.Context(), req.FileIDs, user.ID, user.IsSuperuser); err != nil {
			respondWithError(c, err)
			return
		}

		taskID, err := scheduler.SubmitMerge(c.Request.Context(), req.FileIDs, req.OutputFilename, user.ID, user.IsSuperuser)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "TASK_SUBMIT_FAILED",
				"message": "結合タスクの投入に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
	}
}

// respondWithError は操作エラーを種別に応じたHTTPステータスへ変換します。
func respondWithError(c *gin.Context, err error) {
	var opErr *Error
	switch {
	case errors.As(err, &opErr):
		status := http.StatusInternalServerError
		switch opErr.Kind {
		case KindNotFound:
			status = http.StatusNotFound
		case KindForbidden:
			status = http.StatusForbidden
		case KindValidation, KindContent:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"code":    string(opErr.Kind),
			"message": opErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
