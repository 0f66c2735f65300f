package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError 网关错误，Code 决定类别和 HTTP 状态，Message 原样返回给客户端
type AppError struct {
	Code    int
	Message string
	Err     error // 底层原因，只进日志
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同码即相等，errors.Is 可以直接匹配预定义错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap 返回带原因的副本，预定义错误本身不变；err 为 nil 时返回 e
func (e *AppError) Wrap(err error) *AppError {
	if err == nil {
		return e
	}
	return &AppError{Code: e.Code, Message: e.Message, Err: err}
}

// Category 返回错误码所属类别
func (e *AppError) Category() Category {
	switch {
	case e.Code >= 10000 && e.Code < 11000:
		return CategoryAuth
	case e.Code >= 13000 && e.Code < 14000:
		return CategoryEvent
	default:
		return CategorySystem
	}
}

// Is 判断 err 链上是否存在与 target 同码的 AppError
func Is(err error, target *AppError) bool {
	return errors.Is(err, target)
}

// From 取 err 链上的 AppError，没有时返回 ErrServerError 包装 err
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrServerError.Wrap(err)
}

// GetCode 获取错误码，非 AppError 返回 CodeServerError
func GetCode(err error) int {
	return From(err).Code
}

// GetMessage 客户端可见的消息，底层原因不外泄
func GetMessage(err error) string {
	return From(err).Message
}

// HTTPStatus 按类别映射 HTTP 状态：认证 401，事件 400，系统 503
func HTTPStatus(err error) int {
	switch From(err).Category() {
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryEvent:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// Category 错误类别
type Category int

const (
	CategorySystem Category = iota
	CategoryAuth
	CategoryEvent
)

// ============== 错误码定义 ==============

const (
	// 认证相关 10000-10999
	CodeTokenInvalid = 10003
	CodeTokenExpired = 10004
	CodeTokenMissing = 10006
	CodeTokenRevoked = 10007

	// 实时事件相关 13000-13999
	CodeInvalidEvent   = 13001
	CodeEmptyRoomName  = 13002
	CodeSendBufferFull = 13004

	// 系统错误 50000-50999
	CodeServerError      = 50001
	CodeStoreUnavailable = 50004
)

// ============== 预定义错误 ==============

// 认证相关，消息与 HTTP 接口返回的 error 字段一致
var (
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Invalid token.")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token has expired.")
	ErrTokenMissing = NewError(CodeTokenMissing, "Token is missing.")
	ErrTokenRevoked = NewError(CodeTokenRevoked, "Invalid token.")
)

// 实时事件相关
var (
	ErrInvalidEvent   = NewError(CodeInvalidEvent, "Invalid event.")
	ErrEmptyRoomName  = NewError(CodeEmptyRoomName, "Room name is required.")
	ErrSendBufferFull = NewError(CodeSendBufferFull, "Send buffer is full.")
)

// 系统相关
var (
	ErrServerError      = NewError(CodeServerError, "Internal server error.")
	ErrStoreUnavailable = NewError(CodeStoreUnavailable, "Revocation store is unavailable.")
)
