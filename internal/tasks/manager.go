// Package tasks は非同期タスクの投入・実行・状態管理を提供します。
//
// タスクはAsynq経由でRedisキューに投入され、ワーカーが実行します。
// 実行状態はStoreに保存され、クライアントはポーリングで進行を確認します。
// 投入は完了を待たず、結果は状態レコードを通じてのみ伝わります。
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/paper-press/internal/config"
	"github.com/yourusername/paper-press/internal/pdf"
	"github.com/yourusername/paper-press/internal/repository"
)

const (
	taskTypeConvert = "pdf:convert"
	taskTypeMerge   = "pdf:merge"
	queueName       = "pdf"
)

// Executor は変換と結合の実処理を提供します。通常は *pdf.Service です。
type Executor interface {
	ConvertImageToPDF(ctx context.Context, fileID, ownerID int64) (*repository.FileRecord, error)
	MergePDFs(ctx context.Context, fileIDs []int64, outputFilename string, ownerID int64, superuser bool) (*repository.FileRecord, error)
}

// RecordStore はタスク状態レコードの保存先です。通常は *Store です。
type RecordStore interface {
	Get(ctx context.Context, taskID string) (*Record, error)
	CreatePending(ctx context.Context, taskID string, kind Kind) error
	MarkStarted(ctx context.Context, taskID string) error
	MarkRetry(ctx context.Context, taskID string, message string, retries, maxRetries int) error
	MarkSuccess(ctx context.Context, taskID string, result *ResultInfo) error
	MarkFailure(ctx context.Context, taskID string, errInfo *ErrorInfo) error
}

// Observer はタスクの実行結果を計測します。
type Observer interface {
	ObserveTask(kind, outcome string)
}

// Manager はタスクの投入と状態管理を担います。
type Manager struct {
	cfg      *config.Config
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    RecordStore
	exec     Executor
	observer Observer
	logger   *log.Logger
}

// NewManager は Manager を初期化します。observer はnilでも構いません。
func NewManager(cfg *config.Config, exec Executor, store RecordStore, observer Observer, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if exec == nil {
		return nil, errors.New("executor is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	manager := &Manager{
		cfg:      cfg,
		store:    store,
		exec:     exec,
		observer: observer,
		logger:   logger,
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	manager.client = asynq.NewClient(opt)
	manager.server = asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
			RetryDelayFunc: manager.retryDelay,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeConvert, manager.handleConvertTask)
	mux.HandleFunc(taskTypeMerge, manager.handleMergeTask)
	manager.mux = mux

	return manager, nil
}

// retryDelay は一時的な失敗の再実行までの待ち時間を返します。
// n はこれまでに再実行された回数で、待ち時間は回数に比例して伸び、
// 上限で頭打ちになります。
func (m *Manager) retryDelay(n int, err error, task *asynq.Task) time.Duration {
	base := time.Duration(m.cfg.TaskRetryDelaySeconds) * time.Second
	limit := time.Duration(m.cfg.TaskRetryMaxDelaySeconds) * time.Second
	delay := base * time.Duration(n+1)
	if delay > limit {
		delay = limit
	}
	return delay
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
// APIサーバーにワーカーを同居させる構成で使用します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// RunWorker は Asynq サーバーを起動し、停止するまでブロックします。
// 専用ワーカープロセスで使用します。
func (m *Manager) RunWorker() error {
	return m.server.Run(m.mux)
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// GetStatus はタスクの状態レコードを返します。存在しない場合は (nil, nil) です。
func (m *Manager) GetStatus(ctx context.Context, taskID string) (*Record, error) {
	return m.store.Get(ctx, taskID)
}

// SubmitConvert は画像変換タスクを投入し、タスクIDを返します。
// 状態レコードはキュー投入の前に作成されるため、このメソッドが返った
// 直後の照会でもタスクは必ず見つかります。
func (m *Manager) SubmitConvert(ctx context.Context, fileID, ownerID int64) (string, error) {
	payload := &ConvertPayload{
		TaskID:  uuid.NewString(),
		FileID:  fileID,
		OwnerID: ownerID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	timeout := time.Duration(m.cfg.ConvertHardTimeoutSeconds) * time.Second
	return m.submit(ctx, payload.TaskID, KindConvert, taskTypeConvert, body, timeout)
}

// SubmitMerge はPDF結合タスクを投入し、タスクIDを返します。
func (m *Manager) SubmitMerge(ctx context.Context, fileIDs []int64, outputFilename string, ownerID int64, superuser bool) (string, error) {
	payload := &MergePayload{
		TaskID:         uuid.NewString(),
		FileIDs:        fileIDs,
		OutputFilename: outputFilename,
		OwnerID:        ownerID,
		Superuser:      superuser,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	timeout := time.Duration(m.cfg.MergeHardTimeoutSeconds) * time.Second
	return m.submit(ctx, payload.TaskID, KindMerge, taskTypeMerge, body, timeout)
}

func (m *Manager) submit(ctx context.Context, taskID string, kind Kind, taskType string, body []byte, timeout time.Duration) (string, error) {
	if err := m.store.CreatePending(ctx, taskID, kind); err != nil {
		return "", fmt.Errorf("failed to create task record: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.Queue(queueName),
		asynq.MaxRetry(m.cfg.TaskMaxRetries),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}

	task := asynq.NewTask(taskType, body)
	if _, err := m.client.EnqueueContext(ctx, task, opts...); err != nil {
		enqueueErr := &ErrorInfo{
			Message:    fmt.Sprintf("Failed to enqueue task: %v", err),
			Retries:    0,
			MaxRetries: m.cfg.TaskMaxRetries,
		}
		if markErr := m.store.MarkFailure(ctx, taskID, enqueueErr); markErr != nil {
			m.logger.Printf("failed to mark enqueue failure taskId=%s: %v", taskID, markErr)
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	m.logger.Printf("task submitted taskId=%s kind=%s", taskID, kind)
	return taskID, nil
}

func (m *Manager) handleConvertTask(ctx context.Context, task *asynq.Task) error {
	var payload ConvertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal convert payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TaskID == "" {
		return fmt.Errorf("missing task_id in payload: %w", asynq.SkipRetry)
	}

	soft := time.Duration(m.cfg.ConvertTimeoutSeconds) * time.Second
	retries, maxRetries := m.retryCounts(ctx)
	return m.runTask(ctx, payload.TaskID, KindConvert, soft, retries, maxRetries, func(runCtx context.Context) (*repository.FileRecord, error) {
		return m.exec.ConvertImageToPDF(runCtx, payload.FileID, payload.OwnerID)
	})
}

func (m *Manager) handleMergeTask(ctx context.Context, task *asynq.Task) error {
	var payload MergePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal merge payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TaskID == "" {
		return fmt.Errorf("missing task_id in payload: %w", asynq.SkipRetry)
	}

	soft := time.Duration(m.cfg.MergeTimeoutSeconds) * time.Second
	retries, maxRetries := m.retryCounts(ctx)
	return m.runTask(ctx, payload.TaskID, KindMerge, soft, retries, maxRetries, func(runCtx context.Context) (*repository.FileRecord, error) {
		return m.exec.MergePDFs(runCtx, payload.FileIDs, payload.OutputFilename, payload.OwnerID, payload.Superuser)
	})
}

// retryCounts はAsynqのコンテキストから再実行回数と上限を取り出します。
func (m *Manager) retryCounts(ctx context.Context) (int, int) {
	retries, _ := asynq.GetRetryCount(ctx)
	maxRetries, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		maxRetries = m.cfg.TaskMaxRetries
	}
	return retries, maxRetries
}

// runTask は1回のタスク実行と状態遷移を担います。
// 恒久的な失敗は即座に終端へ、一時的な失敗は再実行回数が残っていれば
// retryへ、使い切っていればfailureへ遷移します。
func (m *Manager) runTask(ctx context.Context, taskID string, kind Kind, soft time.Duration, retries, maxRetries int, run func(context.Context) (*repository.FileRecord, error)) error {
	if err := m.store.MarkStarted(ctx, taskID); err != nil {
		// 状態が記録できない間は実行しない
		return fmt.Errorf("failed to mark task started: %w", err)
	}

	runCtx := ctx
	if soft > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, soft)
		defer cancel()
	}

	record, err := run(runCtx)
	if err == nil {
		result := &ResultInfo{FileID: record.ID, FilePath: record.Filepath}
		if markErr := m.store.MarkSuccess(ctx, taskID, result); markErr != nil {
			// 実処理は完了しているため再実行せず、記録失敗のみログに残す
			m.logger.Printf("failed to mark task success taskId=%s: %v", taskID, markErr)
		}
		m.observe(kind, "success")
		m.logger.Printf("task succeeded taskId=%s kind=%s fileId=%d retries=%d", taskID, kind, record.ID, retries)
		return nil
	}

	var opErr *pdf.Error
	if errors.As(err, &opErr) && opErr.Permanent() {
		m.markFailure(ctx, taskID, &ErrorInfo{
			Message:    err.Error(),
			Retries:    retries,
			MaxRetries: maxRetries,
		})
		m.observe(kind, "failure")
		m.logger.Printf("task failed permanently taskId=%s kind=%s: %v", taskID, kind, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if retries >= maxRetries {
		m.markFailure(ctx, taskID, &ErrorInfo{
			Message:    fmt.Sprintf("Failed after %d retries: %v", retries, err),
			Retries:    retries,
			MaxRetries: maxRetries,
		})
		m.observe(kind, "failure")
		m.logger.Printf("task failed after %d retries taskId=%s kind=%s: %v", retries, taskID, kind, err)
		return err
	}

	if markErr := m.store.MarkRetry(ctx, taskID, err.Error(), retries, maxRetries); markErr != nil {
		m.logger.Printf("failed to mark task retry taskId=%s: %v", taskID, markErr)
	}
	m.observe(kind, "retry")
	m.logger.Printf("task will retry taskId=%s kind=%s retries=%d: %v", taskID, kind, retries, err)
	return err
}

func (m *Manager) markFailure(ctx context.Context, taskID string, errInfo *ErrorInfo) {
	if err := m.store.MarkFailure(ctx, taskID, errInfo); err != nil {
		m.logger.Printf("failed to mark task failure taskId=%s: %v", taskID, err)
	}
}

func (m *Manager) observe(kind Kind, outcome string) {
	if m.observer != nil {
		m.observer.ObserveTask(string(kind), outcome)
	}
}
