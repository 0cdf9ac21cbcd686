package httptransport

import (
	"inboxrelay/backend/internal/engine"
	"inboxrelay/backend/internal/gate"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 准入闸门错误
	gate.ErrSubscriberNotFound: "订阅者不存在",
	gate.ErrInvalidTransition:  "当前审批状态不允许该操作",

	// 引擎错误
	engine.ErrNotAuthorized: "尚未获得使用批准",
	engine.ErrNoSession:     "没有活动的邮箱会话",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 订阅相关
	MsgSubscriberNotFound  = "订阅者不存在"
	MsgNotApproved         = "尚未获得使用批准，请等待管理员审核"
	MsgNoActiveSession     = "没有活动的邮箱会话，请先申请邮箱"
	MsgMailboxCreateFailed = "申请邮箱失败"
	MsgCallbackUnreachable = "回调地址不可达，订阅已被解除"

	// 审批相关
	MsgApproveFailed = "批准操作失败"
	MsgRejectFailed  = "拒绝操作失败"
	MsgRemoveFailed  = "移除操作失败"

	// 服务商相关
	// 凭证失效等细节只进日志，对订阅者一律呈现为暂时不可用
	MsgServiceUnavailable = "服务暂时不可用，请稍后再试"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
