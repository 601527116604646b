package assembly

import (
	"errors"
	"fmt"

	"github.com/onboardly/application-pdf/internal/onboarding"
	"github.com/onboardly/application-pdf/internal/pdf"
)

// Kind は失敗の分類です。ホスト側の再試行方針はこれで決まります。
type Kind int

const (
	// KindInput は入力やオンボーディング記録の状態に起因する失敗で、再試行しても変わりません。
	KindInput Kind = iota + 1
	// KindIO はストレージ・DB・テンプレート読み込みの失敗です。
	KindIO
	// KindDocument は PDF 処理の失敗です。
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindIO:
		return "io"
	case KindDocument:
		return "document"
	}
	return "unknown"
}

const (
	CodeJobIDRequired         = "JOB_ID_REQUIRED"
	CodeOnboardingIDRequired  = "ONBOARDING_ID_REQUIRED"
	CodeUnsupportedSubsidiary = "UNSUPPORTED_SUBSIDIARY"
	CodeOnboardingNotFound    = "ONBOARDING_NOT_FOUND"
	CodeSubsidiaryMismatch    = "SUBSIDIARY_MISMATCH"
	CodeFormNotComplete       = "FORM_NOT_COMPLETE"
	CodeFormDataIncomplete    = "FORM_DATA_INCOMPLETE"
	CodeOnboardingReadFailed  = "ONBOARDING_READ_FAILED"
	CodeTemplateUnreadable    = "TEMPLATE_UNREADABLE"
	CodeAttachmentUnreadable  = "ATTACHMENT_UNREADABLE"
	CodeUploadFailed          = "UPLOAD_FAILED"
	CodeStatusReadFailed      = "STATUS_READ_FAILED"
	CodeStatusWriteFailed     = "STATUS_WRITE_FAILED"
)

// Error はジョブの失敗を表します。Message はポーリング側に見せる文言です。
type Error struct {
	Kind    Kind
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

func inputError(code, message string) *Error {
	return &Error{Kind: KindInput, Code: code, Message: message}
}

func ioError(code, message string, err error) *Error {
	return &Error{Kind: KindIO, Code: code, Message: message, Err: err}
}

// documentError は pdf.Error を分類し直します。必須フィールドの欠落は入力エラーです。
func documentError(err error) *Error {
	var pdfErr *pdf.Error
	if errors.As(err, &pdfErr) {
		kind := KindDocument
		if pdfErr.Code == pdf.CodeMissingRequiredField {
			kind = KindInput
		}
		return &Error{Kind: kind, Code: pdfErr.Code, Message: pdfErr.Message, Err: pdfErr.Err}
	}
	return &Error{Kind: KindDocument, Code: pdf.CodeMergeFailed, Message: "document processing failed", Err: err}
}

func formDataError(err error) *Error {
	if errors.Is(err, onboarding.ErrIncompleteForm) {
		return &Error{Kind: KindInput, Code: CodeFormDataIncomplete, Message: err.Error()}
	}
	return &Error{Kind: KindDocument, Code: CodeFormDataIncomplete, Message: "failed to map form data", Err: err}
}

// IsInput は再試行しても結果が変わらない入力エラーかどうかを返します。
func IsInput(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInput
}

// ErrorCode はエラーコードを返します。分類されていないエラーは INTERNAL_ERROR です。
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// statusMessage は状態レコードに書くメッセージです。
func statusMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
