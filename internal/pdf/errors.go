package pdf

// ErrorKind は処理失敗の分類です。
// タスク実行側はこの分類でリトライの可否を判定します。
type ErrorKind string

const (
	// KindNotFound は対象ファイルが存在しない失敗です。
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindForbidden は対象ファイルへのアクセス権がない失敗です。
	KindForbidden ErrorKind = "FORBIDDEN"
	// KindValidation は入力内容が不正な失敗です。
	KindValidation ErrorKind = "VALIDATION_ERROR"
	// KindContent はファイルの中身を処理できない失敗です。
	KindContent ErrorKind = "CONTENT_ERROR"
	// KindIO はディスク書き込みなどの入出力の失敗です。再試行で回復する可能性があります。
	KindIO ErrorKind = "IO_ERROR"
)

// Error は分類付きの処理エラーです。
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent は再試行しても成功の見込みがない失敗かどうかを返します。
// 入出力エラーと分類されていないエラーのみが再試行の対象です。
func (e *Error) Permanent() bool {
	switch e.Kind {
	case KindNotFound, KindForbidden, KindValidation, KindContent:
		return true
	}
	return false
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
