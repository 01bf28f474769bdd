// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/paper-press/internal/auth"
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

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	// マイグレーションの適用とデータベース接続
	if err := database.Migrate(cfg.DatabaseURL, log.Default()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	fileRepo := repository.NewFileRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 認証マネージャーと初期スーパーユーザー
	authManager := auth.NewManager(cfg, userRepo, log.Default())
	if err := authManager.EnsureSuperuser(ctx); err != nil {
		log.Fatalf("Failed to ensure superuser: %v", err)
	}

	// ファイルストレージとPDFサービス
	st, err := storage.New(cfg.UploadDir, cfg.TempDir)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	pdfService := pdf.NewService(fileRepo, st, log.Default())

	// タスクマネージャー（ワーカーを同一プロセスで起動する。
	// 専用ワーカープロセスを使う場合は cmd/worker を参照）
	taskManager, err := setupTasks(cfg, pdfService)
	if err != nil {
		log.Fatalf("Failed to init task manager: %v", err)
	}
	taskManager.StartWorkers()
	defer taskManager.Shutdown(context.Background())

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// HTTPメトリクスの記録
	router.Use(metrics.Middleware())

	// ルーティングの設定
	setupRoutes(router, cfg, authManager, pdfService, taskManager, fileRepo, st)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "paper-press-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authManager *auth.Manager,
	pdfService *pdf.Service,
	taskManager *tasks.Manager,
	fileRepo repository.FileRepository,
	st *storage.Storage,
) {
	// まずは誰でも叩けるヘルスチェックとメトリクスを登録
	router.GET("/health", handleHealth)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", authManager.Register)
			authRoutes.POST("/login/access-token", authManager.Login)
			authRoutes.GET("/me", authManager.RequireUser(), authManager.Me)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireUser())
		{
			files := protected.Group("/files")
			{
				files.POST("/upload-image", pdf.UploadImageHandler(pdfService, taskManager, cfg.MaxFileSize))
				files.GET("/task/:task_id", taskStatusHandler(taskManager, fileRepo))
				files.GET("", fileListHandler(fileRepo))
				files.GET("/:file_id", fileDownloadHandler(fileRepo, st))
				files.DELETE("/:file_id", fileDeleteHandler(fileRepo))
			}

			pdfs := protected.Group("/pdfs")
			{
				pdfs.POST("/merge", pdf.MergeHandler(pdfService, taskManager))
			}
		}
	}
}
