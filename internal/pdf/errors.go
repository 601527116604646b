// Package pdf はフォーム入力、署名の描画、フラット化、添付の結合といった PDF 処理を提供します。
package pdf

import "fmt"

const (
	CodeInvalidTemplate      = "INVALID_TEMPLATE"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeFillFailed           = "FILL_FAILED"
	CodeSignatureFailed      = "SIGNATURE_FAILED"
	CodeFlattenFailed        = "FLATTEN_FAILED"
	CodeUnsupportedFile      = "UNSUPPORTED_FILE"
	CodeInvalidImage         = "INVALID_IMAGE"
	CodeMergeFailed          = "MERGE_FAILED"
)

// Error は PDF 処理のエラーを表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
