package domain

import "time"

// MailboxSession 表示订阅者与一个临时邮箱之间的活动绑定。
//
// 每个订阅者同一时间最多持有一个会话；申请新邮箱会替换旧会话。
// 已投递消息的去重集合由会话注册表内部维护，不对外暴露。
type MailboxSession struct {
	MailboxID string    `json:"mailboxId"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}
