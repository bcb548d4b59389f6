// Package errors provides structured error handling for the application.
// It defines AppError type with error codes and classifies codes into the
// pipeline's failure kinds.
package errors

import (
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeSuccess       = 0
	CodeUnknown       = 1000
	CodeInvalidParams = 1001
	CodeNotFound      = 1002
	CodeUnauthorized  = 1003

	// Storyboard errors (1100-1199)
	CodeStoryboardRead = 1100
	CodeValidation     = 1101
	CodeConsistency    = 1102

	// Remote service errors (1200-1299)
	CodeServiceFailed     = 1200
	CodeServiceTimeout    = 1201
	CodeServiceBusy       = 1202
	CodeInstanceLifecycle = 1203
	CodeLLMInvalidReply   = 1204
	CodeMediaToolFailed   = 1205

	// Storage errors (1500-1599)
	CodeDBError        = 1500
	CodeFileNotFound   = 1501
	CodeFileWriteError = 1502
	CodeFileSystem     = 1503
)

// Kind is the failure class a code belongs to. Stages decide between
// abort, retry and skip based on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTransient
	KindFileSystem
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindTransient:
		return "TransientServiceError"
	case KindFileSystem:
		return "FileSystemError"
	case KindConsistency:
		return "ConsistencyError"
	default:
		return "UnknownError"
	}
}

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted detail.
func Newf(code int, message string, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Is checks if the target error is an AppError with the specified code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetMessage extracts message from error
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// KindOf classifies err. Errors that are not AppErrors come from
// collaborators (network, subprocess) and count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return KindTransient
	}
	return kindOfCode(appErr.Code)
}

func kindOfCode(code int) Kind {
	switch {
	case code == CodeInvalidParams || code == CodeValidation || code == CodeStoryboardRead:
		return KindValidation
	case code == CodeConsistency:
		return KindConsistency
	case code >= 1200 && code < 1300:
		return KindTransient
	case code >= 1500 && code < 1600:
		return KindFileSystem
	default:
		return KindUnknown
	}
}

func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsTransient(err error) bool   { return KindOf(err) == KindTransient }
func IsFileSystem(err error) bool  { return KindOf(err) == KindFileSystem }
func IsConsistency(err error) bool { return KindOf(err) == KindConsistency }

// Predefined common errors
var (
	ErrInvalidParams = New(CodeInvalidParams, "参数错误 Invalid parameters")
	ErrNotFound      = New(CodeNotFound, "资源不存在 Resource not found")
	ErrUnauthorized  = New(CodeUnauthorized, "未授权 Unauthorized")

	// Storyboard
	ErrStoryboardRead = New(CodeStoryboardRead, "分镜文件读取失败 Storyboard read failed")
	ErrValidation     = New(CodeValidation, "分镜字段缺失 Storyboard validation failed")
	ErrConsistency    = New(CodeConsistency, "分段时长不一致 Segment durations inconsistent")

	// Remote services
	ErrServiceFailed   = New(CodeServiceFailed, "远程服务调用失败 Remote service failed")
	ErrServiceTimeout  = New(CodeServiceTimeout, "远程服务超时 Remote service timeout")
	ErrServiceBusy     = New(CodeServiceBusy, "远程服务忙 Remote service busy")
	ErrInstance        = New(CodeInstanceLifecycle, "实例开关机失败 Instance lifecycle failed")
	ErrLLMInvalidReply = New(CodeLLMInvalidReply, "大模型返回格式错误 Invalid LLM reply")
	ErrMediaTool       = New(CodeMediaToolFailed, "媒体处理失败 Media tool failed")

	// Storage
	ErrDBError      = New(CodeDBError, "数据库错误 Database error")
	ErrFileNotFound = New(CodeFileNotFound, "文件不存在 File not found")
	ErrFileWrite    = New(CodeFileWriteError, "文件写入失败 File write failed")
)
