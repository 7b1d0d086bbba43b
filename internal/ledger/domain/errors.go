package domain

import (
	"errors"
	"fmt"
)

// ErrorCode 错误分类，接口层据此映射 HTTP 状态码
type ErrorCode string

const (
	CodeValidation     ErrorCode = "VALIDATION"
	CodeExceedsBalance ErrorCode = "EXCEEDS_BALANCE"
	CodeRateNotFound   ErrorCode = "RATE_NOT_FOUND"
	CodeConcurrency    ErrorCode = "CONCURRENCY"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodePersistence    ErrorCode = "PERSISTENCE"
)

// Error 带分类码的领域错误。核心层不向调用方抛出裸的存储层错误，
// 一律包装为 Error 并保留原始原因用于日志。
type Error struct {
	Code    ErrorCode
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

// NewError 创建领域错误
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError 包装底层错误
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsError 取出领域错误；未分类的一律按存储层故障处理
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return &Error{Code: CodePersistence, Message: "storage failure", Err: err}
}

// CodeOf 返回错误的分类码
func CodeOf(err error) ErrorCode {
	return AsError(err).Code
}

// IsCode 判断错误是否属于指定分类
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return AsError(err).Code == code
}
