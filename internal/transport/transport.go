package transport

import (
	"context"
	"errors"

	"inboxrelay/backend/internal/domain"
)

var (
	// ErrUnreachable 表示订阅者已经收不到任何通知（回调地址失效或拒收）。
	// 与瞬时投递失败区分开：引擎收到此错误后会走与巡检淘汰相同的清退路径。
	ErrUnreachable = errors.New("subscriber unreachable")
)

// Transport 是面向订阅者的消息下发通道。
type Transport interface {
	// Deliver 向订阅者投递一段格式化文本。
	// 返回 nil 表示投递已确认；ErrUnreachable 表示订阅者永久不可达；
	// 其他错误视为瞬时失败，消息留待下个轮询周期重投。
	Deliver(ctx context.Context, sub domain.Subscriber, text string) error

	// Reachable 判断订阅者当前是否仍然可达，供可达性巡检使用。
	Reachable(ctx context.Context, sub domain.Subscriber) bool
}
