package common

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNotFound 未找到错误
	ErrNotFound = errors.New("not found")

	// ErrEmptyUpdate 没有可更新的字段
	ErrEmptyUpdate = errors.New("no fields to update")

	// ErrUnavailable 存储不可用
	ErrUnavailable = errors.New("storage unavailable")

	// ErrUnauthorized 未授权错误
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind 错误分类
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindEmptyUpdate       Kind = "empty_update"
	KindUnavailable       Kind = "unavailable"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindInternal          Kind = "internal"
)

// HTTPStatus 返回错误分类对应的 HTTP 状态码
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidTransition, KindEmptyUpdate:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AppError 应用错误
type AppError struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Cause   error
}

func (e *AppError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError 创建应用错误
func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Validation 创建带字段详情的校验错误
func Validation(fields map[string]string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Message: "invalid input",
		Fields:  fields,
	}
}

// NotFound 创建未找到错误
func NotFound(what string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: what + " not found",
		Cause:   ErrNotFound,
	}
}

// Conflict 创建冲突错误
func Conflict(message string, cause error) *AppError {
	return NewAppError(KindConflict, message, cause)
}

// InvalidTransition 创建业务规则拒绝错误
func InvalidTransition(format string, args ...interface{}) *AppError {
	return NewAppError(KindInvalidTransition, fmt.Sprintf(format, args...), nil)
}

// EmptyUpdate 创建空更新错误
func EmptyUpdate() *AppError {
	return NewAppError(KindEmptyUpdate, "no fields to update", ErrEmptyUpdate)
}

// Unavailable 创建存储不可用错误
func Unavailable(cause error) *AppError {
	return NewAppError(KindUnavailable, "storage unavailable", errors.Join(ErrUnavailable, cause))
}

// Internal 创建内部错误
func Internal(message string, cause error) *AppError {
	return NewAppError(KindInternal, message, cause)
}

// KindOf 返回错误的分类, 非 AppError 视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrEmptyUpdate) {
		return KindEmptyUpdate
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrUnavailable) {
		return KindUnavailable
	}
	return KindInternal
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
