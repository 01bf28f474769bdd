package tasks

import "time"

// Kind は非同期タスクの種別です。種別は固定で、これ以外の値は扱いません。
type Kind string

const (
	// KindConvert は画像からPDFへの変換タスクです。
	KindConvert Kind = "convert"
	// KindMerge は複数PDFの結合タスクです。
	KindMerge Kind = "merge"
)

// Status はタスクの実行状態を表します。
type Status string

const (
	// StatusPending は投入済みでまだ実行されていない状態です。
	StatusPending Status = "pending"
	// StatusStarted はワーカーが実行中の状態です。
	StatusStarted Status = "started"
	// StatusRetry は一時的な失敗のため再実行を待っている状態です。
	StatusRetry Status = "retry"
	// StatusSuccess は正常に完了した終端状態です。
	StatusSuccess Status = "success"
	// StatusFailure は失敗で終了した終端状態です。
	StatusFailure Status = "failure"
)

// Terminal は終端状態（以後変化しない状態）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// ResultInfo はタスク成功時の結果です。
type ResultInfo struct {
	FileID   int64  `json:"file_id"`
	FilePath string `json:"file_path"`
}

// ErrorInfo はタスク失敗時のエラー情報です。
type ErrorInfo struct {
	Message    string `json:"message"`
	Retries    int    `json:"retries"`
	MaxRetries int    `json:"max_retries"`
}

// Record はタスクの現在状態を表します。ワーカーの実行経路だけが
// 状態を変更し、終端状態に達した後は変化しません。
type Record struct {
	TaskID    string      `json:"task_id"`
	Kind      Kind        `json:"kind"`
	Status    Status      `json:"status"`
	Result    *ResultInfo `json:"result,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// ConvertPayload は画像変換タスクの入力です。
type ConvertPayload struct {
	TaskID  string `json:"task_id"`
	FileID  int64  `json:"file_id"`
	OwnerID int64  `json:"owner_id"`
}

// MergePayload はPDF結合タスクの入力です。OwnerIDは投入した
// 呼び出し元のIDであり、結合結果の所有者になります。
type MergePayload struct {
	TaskID         string  `json:"task_id"`
	FileIDs        []int64 `json:"file_ids"`
	OutputFilename string  `json:"output_filename"`
	OwnerID        int64   `json:"owner_id"`
	Superuser      bool    `json:"superuser"`
}
