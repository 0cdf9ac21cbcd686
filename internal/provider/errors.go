package provider

import "errors"

var (
	// ErrAuth 表示服务商拒绝了 API 凭证（HTTP 401）。
	// 凭证是全进程共享的，此错误不重试，调用方应暂停所有后续服务商调用。
	ErrAuth = errors.New("provider credential rejected")

	// ErrUnavailable 表示瞬时错误（5xx、连接失败、超时）在重试耗尽后仍未恢复。
	ErrUnavailable = errors.New("provider unavailable")

	// ErrMalformedResponse 表示响应无法解析或缺少必要字段，不重试。
	ErrMalformedResponse = errors.New("provider response malformed")
)
