package convert

import "fmt"

// 変換エラーの分類コード。ワーカーは *Error をまとめて failed 扱いにし、
// コードはログと status API での原因表示に使います。
const (
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"  // 対応していない拡張子（バックエンド呼び出し前に確定）
	CodeInitFailed       = "INIT_FAILED"       // 変換バックエンドが利用できない／未インストール
	CodeConversionFailed = "CONVERSION_FAILED" // 変換処理の失敗、または出力が生成されなかった
	CodeTimeout          = "TIMEOUT"           // 出力ファイルの安定待ちがタイムアウト
)

// Error は変換処理の失敗を表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
