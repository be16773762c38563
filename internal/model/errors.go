package model

import (
	"errors"
	"fmt"
)

// AppError は統一エラーフォーマットを表す。
// ステータスメッセージに表示する原因カテゴリを含む。
type AppError struct {
	Code       string // エラーコード
	Message    string // エラーメッセージ
	Category   string // カテゴリ: api, store, index, catalog, record
	StatusCode int    // TRANSPORT_ERROR の場合のHTTPステータス
	Err        error  // 原因となったエラー
}

// Error はerrorインターフェースを実装する。
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is はエラーコードが一致する場合にtrueを返す。errors.Isで番兵エラーと照合できる。
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeTransport        = "TRANSPORT_ERROR"
	ErrCodeStoreMissing     = "STORE_MISSING"
	ErrCodeNoPhotos         = "NO_PHOTOS"
	ErrCodeUnknownPerson    = "UNKNOWN_PERSON"
	ErrCodeInvalidRecord    = "INVALID_RECORD"
	ErrCodePhotoFetchFailed = "PHOTO_FETCH_FAILED"
)

// errors.Is 用の番兵エラー。コードのみで照合される。
var (
	ErrTransport        = &AppError{Code: ErrCodeTransport}
	ErrStoreMissing     = &AppError{Code: ErrCodeStoreMissing}
	ErrNoPhotos         = &AppError{Code: ErrCodeNoPhotos}
	ErrUnknownPerson    = &AppError{Code: ErrCodeUnknownPerson}
	ErrInvalidRecord    = &AppError{Code: ErrCodeInvalidRecord}
	ErrPhotoFetchFailed = &AppError{Code: ErrCodePhotoFetchFailed}
)

// NewTransportError はAPIが成功以外のステータスを返した場合のエラーを生成する。
func NewTransportError(endpoint string, statusCode int) *AppError {
	return &AppError{
		Code:       ErrCodeTransport,
		Message:    fmt.Sprintf("リクエストに失敗しました: %s (status %d)", endpoint, statusCode),
		Category:   "api",
		StatusCode: statusCode,
	}
}

// WrapTransportError はHTTP通信自体の失敗をラップする。
func WrapTransportError(endpoint string, err error) *AppError {
	return &AppError{
		Code:     ErrCodeTransport,
		Message:  fmt.Sprintf("リクエストに失敗しました: %s", endpoint),
		Category: "api",
		Err:      err,
	}
}

// NewStoreMissingError はストアのルートディレクトリが存在しない場合のエラーを生成する。
func NewStoreMissingError(root string) *AppError {
	return &AppError{
		Code:     ErrCodeStoreMissing,
		Message:  fmt.Sprintf("ストアが存在しません: %s", root),
		Category: "store",
	}
}

// NewNoPhotosError は写真が1枚もない人物をインデックスしようとした場合のエラーを生成する。
func NewNoPhotosError(name string) *AppError {
	return &AppError{
		Code:     ErrCodeNoPhotos,
		Message:  fmt.Sprintf("%s は写真がないためインデックスできません", name),
		Category: "index",
	}
}

// NewUnknownPersonError はカタログにない人物IDが指定された場合のエラーを生成する。
func NewUnknownPersonError(id string) *AppError {
	return &AppError{
		Code:     ErrCodeUnknownPerson,
		Message:  fmt.Sprintf("この人物は登録されていません: %s", id),
		Category: "catalog",
	}
}

// NewInvalidRecordError は人物レコードが不正な場合のエラーを生成する。
func NewInvalidRecordError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidRecord,
		Message:  fmt.Sprintf("不正なレコードです: %s", reason),
		Category: "record",
	}
}

// NewPhotoFetchFailedError は写真の取得に失敗した場合のエラーを生成する。
func NewPhotoFetchFailedError(url string, err error) *AppError {
	return &AppError{
		Code:     ErrCodePhotoFetchFailed,
		Message:  fmt.Sprintf("写真の取得に失敗しました: %s", url),
		Category: "store",
		Err:      err,
	}
}
