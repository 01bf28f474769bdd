package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/paper-press/internal/auth"
	"github.com/yourusername/paper-press/internal/config"
	"github.com/yourusername/paper-press/internal/metrics"
	"github.com/yourusername/paper-press/internal/pdf"
	"github.com/yourusername/paper-press/internal/repository"
	"github.com/yourusername/paper-press/internal/tasks"
)

func setupTasks(cfg *config.Config, pdfService *pdf.Service) (*tasks.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlHours := cfg.TaskResultExpireHours
	if ttlHours <= 0 {
		ttlHours = 24
	}
	store := tasks.NewStore(redisClient, time.Duration(ttlHours)*time.Hour)
	manager, err := tasks.NewManager(cfg, pdfService, store, metrics.Observer{}, log.Default())
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// taskStatusReader はタスク状態の参照に必要な操作です。*tasks.Manager が満たします。
type taskStatusReader interface {
	GetStatus(ctx context.Context, taskID string) (*tasks.Record, error)
}

// taskStatusHandler はタスクの進行状況を返すハンドラーです。
// 結果がファイルを指している場合は所有権を確認し、他人の成果物は
// タスクが成功していても参照できません。
func taskStatusHandler(manager taskStatusReader, files repository.FileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}

		taskID := c.Param("task_id")
		if strings.TrimSpace(taskID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "task_id を指定してください。",
			})
			return
		}

		record, err := manager.GetStatus(c.Request.Context(), taskID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "タスク情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "TASK_NOT_FOUND",
				"message": "指定されたタスクは存在しません。",
			})
			return
		}

		if record.Result != nil && record.Result.FileID != 0 {
			file, err := files.GetByID(c.Request.Context(), record.Result.FileID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					c.JSON(http.StatusNotFound, gin.H{
						"code":    "NOT_FOUND",
						"message": fmt.Sprintf("File with ID %d not found", record.Result.FileID),
					})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "ファイル情報の取得に失敗しました。",
				})
				return
			}
			if file.OwnerID != user.ID && !user.IsSuperuser {
				c.JSON(http.StatusForbidden, gin.H{
					"code":    "FORBIDDEN",
					"message": fmt.Sprintf("Not authorized to access file with ID %d", record.Result.FileID),
				})
				return
			}
		}

		// 終端状態のレコードは変化しないため、再取得しても同じ応答になる
		c.JSON(http.StatusOK, gin.H{
			"task_id":    record.TaskID,
			"kind":       record.Kind,
			"status":     record.Status,
			"result":     record.Result,
			"error":      record.Error,
			"updated_at": record.UpdatedAt,
		})
	}
}
