package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dep2p/go-natmap/pkg/types"
)

// 编排器错误
var (
	// ErrClientDestroyed 编排器已销毁
	ErrClientDestroyed = errors.New("natmap: client destroyed")

	// ErrInvalidRequest 请求参数非法（不会发起任何网络请求）
	ErrInvalidRequest = errors.New("natmap: invalid request")

	// ErrNoProtocolSucceeded 所有启用的协议都失败
	ErrNoProtocolSucceeded = errors.New("natmap: no protocol succeeded")
)

// ValidationError 请求校验错误
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("natmap: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap 解包为 ErrInvalidRequest
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ExhaustedError 回退链上所有协议都失败
type ExhaustedError struct {
	Op  string
	Key types.MappingKey

	// Errors 各协议的失败原因，按尝试顺序排列
	Errors []error
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("natmap: ")
	b.WriteString(e.Op)
	if e.Key.PublicPort != 0 {
		b.WriteString(" ")
		b.WriteString(e.Key.String())
	}
	if len(e.Errors) == 0 {
		b.WriteString(": no protocol enabled")
		return b.String()
	}
	b.WriteString(": no protocol succeeded")
	for _, err := range e.Errors {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap 返回 ErrNoProtocolSucceeded 与各协议错误
func (e *ExhaustedError) Unwrap() []error {
	return append([]error{ErrNoProtocolSucceeded}, e.Errors...)
}

// methodError 标注失败的协议
type methodError struct {
	method types.Method
	err    error
}

func (e *methodError) Error() string {
	return e.method.String() + ": " + e.err.Error()
}

func (e *methodError) Unwrap() error {
	return e.err
}
