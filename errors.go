package natmap

import (
	"github.com/dep2p/go-natmap/internal/core/mapping"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrClientDestroyed 客户端已销毁
	ErrClientDestroyed = mapping.ErrClientDestroyed

	// ────────────────────────────────────────────────────────────────────────
	// 请求错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidRequest 请求参数非法
	ErrInvalidRequest = mapping.ErrInvalidRequest

	// ErrNoProtocolSucceeded 所有启用的协议都失败
	ErrNoProtocolSucceeded = mapping.ErrNoProtocolSucceeded
)

// ValidationError 请求校验错误的详细信息
type ValidationError = mapping.ValidationError

// ExhaustedError 回退链上所有协议都失败时的详细信息
type ExhaustedError = mapping.ExhaustedError
