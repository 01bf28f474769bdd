// Package main は変換・結合タスクを処理する専用ワーカーのエントリーポイントです。
// HTTPサーバーを持たず、キューの消費のみを行います。
package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/paper-press/internal/config"
	"github.com/yourusername/paper-press/internal/database"
	"github.com/yourusername/paper-press/internal/metrics"
	"github.com/yourusername/paper-press/internal/pdf"
	"github.com/yourusername/paper-press/internal/repository"
	"github.com/yourusername/paper-press/internal/storage"
	"github.com/yourusername/paper-press/internal/tasks"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// データベース接続（マイグレーションはAPIサーバー側で適用する）
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	fileRepo := repository.NewFileRepository(pool)

	// ファイルストレージとPDFサービス
	st, err := storage.New(cfg.UploadDir, cfg.TempDir)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	pdfService := pdf.NewService(fileRepo, st, log.Default())

	// タスクマネージャーの初期化
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	ttlHours := cfg.TaskResultExpireHours
	if ttlHours <= 0 {
		ttlHours = 24
	}
	store := tasks.NewStore(redisClient, time.Duration(ttlHours)*time.Hour)
	manager, err := tasks.NewManager(cfg, pdfService, store, metrics.Observer{}, log.Default())
	if err != nil {
		log.Fatalf("Failed to init task manager: %v", err)
	}

	// ワーカーの起動（SIGTERM/SIGINTで内部的にグレースフル停止する）
	log.Printf("Starting worker (concurrency: %d)", cfg.WorkerConcurrency)
	if err := manager.RunWorker(); err != nil {
		log.Fatalf("Worker stopped with error: %v", err)
	}
}
