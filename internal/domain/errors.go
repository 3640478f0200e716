package domain

import (
	"errors"
	"fmt"
)

// 同步错误分级：
// - AuthError       厂家明确拒绝凭证，立即置 invalid
// - TransportError  网络/限流/5xx，计数累加，不立即置 invalid
// - ParseError      载荷非空但一个字段都提取不出（厂家结构性变更信号）
// 单日/单设备错误在编排器内聚合进 SyncOutcome，不向上抛出

var (
	// ErrNotBound 用户未绑定该设备
	ErrNotBound = errors.New("device not bound")

	// ErrCredentialInvalid 凭证已被标记无效，需要用户重新绑定
	ErrCredentialInvalid = errors.New("credential is invalid, re-bind required")

	// ErrStateMismatch OAuth 回调 state 与下发值不一致（CSRF 防护，直接拒绝）
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrSyncInProgress 同一 (user, device) 的同步正在进行
	ErrSyncInProgress = errors.New("sync already in progress for this device")
)

// AuthError 厂家拒绝凭证
type AuthError struct {
	DeviceType DeviceType
	Reason     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.DeviceType, e.Reason)
}

// TransportError 网络层错误（超时、5xx、限流）
type TransportError struct {
	DeviceType DeviceType
	Op         string
	StatusCode int
	RateLimit  bool // HTTP 429，调用方应额外退避
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s transport error on %s (status %d): %v", e.DeviceType, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error on %s (status %d)", e.DeviceType, e.Op, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError 载荷非空但无法提取任何字段
type ParseError struct {
	DeviceType DeviceType
	Endpoint   string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error on %s: %s", e.DeviceType, e.Endpoint, e.Reason)
}

// IsAuthError 判断是否为认证失败
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsRateLimited 判断是否为限流错误
func IsRateLimited(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.RateLimit
}
