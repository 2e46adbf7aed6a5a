package common

import (
	"errors"
	"net/http"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`              // 錯誤代碼
	Message string `json:"message"`           // 錯誤信息
	Details string `json:"details,omitempty"` // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap 讓 errors.Is / errors.As 能看到原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is 以錯誤代碼比對，WithError 產生的副本仍與原預定義錯誤相等
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	return ok && t.Code == e.Code
}

// WithError 複製預定義錯誤並附上原始錯誤
func (e *CustomError) WithError(err error) *CustomError {
	return &CustomError{
		Code:    e.Code,
		Message: e.Message,
		Status:  e.Status,
		Err:     err,
	}
}

// Response 轉為 API 錯誤響應，debug 為 true 時附上原始錯誤
func (e *CustomError) Response(debug bool) ErrorResponse {
	resp := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
	}
	if debug && e.Err != nil {
		resp.Details = e.Err.Error()
	}
	return resp
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// AsCustomError 取出錯誤鏈中的 CustomError，沒有時包成內部錯誤
func AsCustomError(err error) *CustomError {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrInternalError.WithError(err)
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest     = "INVALID_REQUEST"     // 400
	ErrCodeNotFound           = "NOT_FOUND"           // 404
	ErrCodeConflict           = "CONFLICT"            // 409
	ErrCodePreconditionFailed = "PRECONDITION_FAILED" // 412
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"   // 429

	// 服務器錯誤 (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"      // 500
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503
)

// 預定義錯誤
var (
	// 客戶端錯誤
	ErrInvalidRequest  = NewError(ErrCodeInvalidRequest, "Invalid request", http.StatusBadRequest, nil)
	ErrNotFound        = NewError(ErrCodeNotFound, "Resource not found", http.StatusNotFound, nil)
	ErrConflict        = NewError(ErrCodeConflict, "Request was superseded by a newer one", http.StatusConflict, nil)
	ErrTooManyRequests = NewError(ErrCodeTooManyRequests, "Too many requests", http.StatusTooManyRequests, nil)

	// 服務器錯誤
	ErrInternalError      = NewError(ErrCodeInternalError, "Internal server error", http.StatusInternalServerError, nil)
	ErrServiceUnavailable = NewError(ErrCodeServiceUnavailable, "Service temporarily unavailable", http.StatusServiceUnavailable, nil)

	// 業務錯誤
	ErrNoImage            = NewError(ErrCodePreconditionFailed, "Please upload an image first.", http.StatusPreconditionFailed, nil)
	ErrNoResult           = NewError("NO_RESULT", "No compressed image yet.", http.StatusNotFound, nil)
	ErrInvalidImageFormat = NewError("INVALID_IMAGE_FORMAT", "The selected file is not a supported image.", http.StatusBadRequest, nil)
	ErrInvalidImageSize   = NewError("INVALID_IMAGE_SIZE", "The selected image is too large.", http.StatusRequestEntityTooLarge, nil)
	ErrInvalidPercentage  = NewError("INVALID_PERCENTAGE", "Compression percentage must be between 1 and 100.", http.StatusBadRequest, nil)
	ErrInvalidDimension   = NewError("INVALID_DIMENSION", "Width and height must be positive integers.", http.StatusBadRequest, nil)
	ErrCompressionFailed  = NewError("COMPRESSION_FAILED", "Failed to compress image. Please try again.", http.StatusBadGateway, nil)
	ErrSessionNotFound    = NewError("SESSION_NOT_FOUND", "Session not found or expired", http.StatusNotFound, nil)
	ErrQueueFull          = NewError("QUEUE_FULL", "Compression queue is full", http.StatusServiceUnavailable, nil)
	ErrStorageFull        = NewError("STORAGE_FULL", "Image storage is full. Please try again later.", http.StatusServiceUnavailable, nil)
)
