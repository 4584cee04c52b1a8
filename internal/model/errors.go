// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError はクライアントに返す想定内のエラーを表す。
// Messageはそのままプレーンテキストのレスポンスボディになる。
type APIError struct {
	Code    string // エラーコード（HTTPステータスへのマッピングに使用）
	Message string // レスポンスボディ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeValidation      = "VALIDATION"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeOwnerImmutable  = "OWNER_IMMUTABLE"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedType = "UNSUPPORTED_MEDIA_TYPE"
)

// NewUnauthorizedError は認証・認可エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: "Unauthorized"}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: "Invalid credentials"}
}

// NewNotFoundError は「<what> not found」形式の未検出エラーを生成する。
func NewNotFoundError(what string) *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: what + " not found"}
}

// NewProjectNotFoundOrUnauthorizedError はタスク系APIでプロジェクトが見えない場合のエラー。
// 存在しないのか権限がないのかは区別しない。
func NewProjectNotFoundOrUnauthorizedError() *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: "Project not found or unauthorized"}
}

// NewValidationError は入力値エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{Code: ErrCodeValidation, Message: message}
}

// NewAlreadyMemberError は重複メンバー追加のエラーを生成する。
func NewAlreadyMemberError() *APIError {
	return &APIError{Code: ErrCodeConflict, Message: "User is already a member"}
}

// NewUserExistsError は登録済みメールアドレスでの登録エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{Code: ErrCodeValidation, Message: "User already exists"}
}

// ErrOwnerRoleImmutable はオーナーのロール変更を拒否する。
var ErrOwnerRoleImmutable = &APIError{Code: ErrCodeOwnerImmutable, Message: "Cannot modify owner's role"}

// ErrOwnerNotRemovable はオーナーのメンバー削除を拒否する。
var ErrOwnerNotRemovable = &APIError{Code: ErrCodeOwnerImmutable, Message: "Cannot remove project owner"}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError() *APIError {
	return &APIError{Code: ErrCodePayloadTooLarge, Message: "File too large"}
}

// NewUnsupportedFileTypeError は画像以外のアップロードを拒否する。
func NewUnsupportedFileTypeError(mime string) *APIError {
	return &APIError{Code: ErrCodeUnsupportedType, Message: fmt.Sprintf("Unsupported file type: %s", mime)}
}
