package domain

import "time"

// ApprovalStatus 表示订阅者在准入闸门中的审批状态。
//
// 状态机: 首次接触 -> pending -> approved（管理员批准）
// 拒绝或移除会直接清空记录，订阅者再次接触时重新进入 pending。
type ApprovalStatus string

const (
	// StatusPending 等待管理员审批
	StatusPending ApprovalStatus = "pending"
	// StatusApproved 已批准，可以使用全部功能
	StatusApproved ApprovalStatus = "approved"
)

// Subscriber 表示一个中继服务的订阅者。
type Subscriber struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Handle   string         `json:"handle,omitempty"`
	Callback string         `json:"callback"` // 通知投递的回调地址
	JoinedAt time.Time      `json:"joinedAt"`
	Status   ApprovalStatus `json:"status"`
}
