package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const taskKeyPrefix = "task:"

// Store はタスク状態をRedisに保存します。
// レコードはTTL付きで保存され、期限が切れると取得できなくなります。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はタスク情報を取得します。存在しない場合は (nil, nil) を返します。
func (s *Store) Get(ctx context.Context, taskID string) (*Record, error) {
	if taskID == "" {
		return nil, fmt.Errorf("taskID is required")
	}
	data, err := s.rdb.Get(ctx, taskKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreatePending は初期状態のレコードを保存します。
// キュー投入の前に呼ぶことで、投入直後の照会が必ずレコードを見つけられます。
func (s *Store) CreatePending(ctx context.Context, taskID string, kind Kind) error {
	if taskID == "" {
		return fmt.Errorf("taskID is required")
	}
	now := time.Now().UTC()
	record := &Record{
		TaskID:    taskID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, taskKey(taskID), payload, s.ttl).Err()
}

// MarkStarted はタスクを実行中に遷移させます。
func (s *Store) MarkStarted(ctx context.Context, taskID string) error {
	return s.updatePartial(ctx, taskID, func(record *Record) {
		applyStarted(record)
	})
}

// MarkRetry は一時的な失敗を記録し、再実行待ちに遷移させます。
func (s *Store) MarkRetry(ctx context.Context, taskID string, message string, retries, maxRetries int) error {
	return s.updatePartial(ctx, taskID, func(record *Record) {
		applyRetry(record, message, retries, maxRetries)
	})
}

// MarkSuccess はタスクを成功の終端状態に遷移させます。
func (s *Store) MarkSuccess(ctx context.Context, taskID string, result *ResultInfo) error {
	return s.updatePartial(ctx, taskID, func(record *Record) {
		applySuccess(record, result)
	})
}

// MarkFailure はタスクを失敗の終端状態に遷移させます。
func (s *Store) MarkFailure(ctx context.Context, taskID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, taskID, func(record *Record) {
		applyFailure(record, errInfo)
	})
}

// updatePartial は読み取り・変更・書き込みでレコードを部分更新します。
// 終端状態のレコードは変更せず、更新日時も保ちます。これにより
// 同じタスクが重複配送されても完了後の状態が上書きされません。
func (s *Store) updatePartial(ctx context.Context, taskID string, mutate func(*Record)) error {
	key := taskKey(taskID)
	for {
		tx := s.rdb.TxPipeline()
		data, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("task not found: %s", taskID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if !applyTransition(&record, mutate) {
			return nil
		}
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		tx.Set(ctx, key, payload, s.ttl)
		_, err = tx.Exec(ctx)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

// applyTransition は終端状態でなければ変更を適用し、更新日時を進めます。
// 終端状態のレコードは一切変更せず、falseを返します。
func applyTransition(record *Record, mutate func(*Record)) bool {
	if record.Status.Terminal() {
		return false
	}
	mutate(record)
	record.UpdatedAt = time.Now().UTC()
	return true
}

// 状態遷移の実体。updatePartial経由で呼ばれる。

func applyStarted(record *Record) {
	record.Status = StatusStarted
}

func applyRetry(record *Record, message string, retries, maxRetries int) {
	record.Status = StatusRetry
	record.Error = &ErrorInfo{
		Message:    message,
		Retries:    retries,
		MaxRetries: maxRetries,
	}
}

func applySuccess(record *Record, result *ResultInfo) {
	record.Status = StatusSuccess
	record.Result = result
	record.Error = nil
}

func applyFailure(record *Record, errInfo *ErrorInfo) {
	record.Status = StatusFailure
	record.Result = nil
	if errInfo != nil {
		record.Error = errInfo
	}
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}
