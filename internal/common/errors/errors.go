// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(ErrXxx.WithError(...), ErrXxx) 成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown          = New(1000, "unknown error")
	ErrInvalidConfig    = New(1001, "invalid configuration")
	ErrPermissionDenied = New(1002, "permission denied")
)

// 表格存储错误码 (2000-2999)，数据缺失类，可降级
var (
	ErrTableNotFound = New(2000, "table not found")
	ErrFetchRows     = New(2001, "failed to fetch rows")
	ErrRowParse      = New(2002, "malformed row field")
)

// 表格写入错误码 (2100-2199)，审计类写入尽力而为
var (
	ErrCreateRow   = New(2100, "failed to create row")
	ErrCreateTable = New(2101, "failed to create table")
	ErrEnsureField = New(2102, "failed to ensure field")
)

// 状态存储错误码 (3000-3999)
var (
	ErrStoreUnavailable = New(3000, "state store unavailable")
)

// 外部服务错误码 (4000-4999)
var (
	ErrNotifyFailed = New(4000, "failed to deliver message")
	ErrLLMFailed    = New(4001, "language model request failed")
	ErrLLMEmpty     = New(4002, "language model returned no answer")
)

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// Is 透传标准库 errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsDegradable 数据缺失类错误：调用方应按空数据继续
func IsDegradable(err error) bool {
	if err == nil {
		return false
	}
	code := GetAppError(err).Code
	return code >= 2000 && code < 2100
}

// IsBestEffort 尽力而为的写入失败：记录日志后吞掉
func IsBestEffort(err error) bool {
	if err == nil {
		return false
	}
	code := GetAppError(err).Code
	return code >= 2100 && code < 2200
}
