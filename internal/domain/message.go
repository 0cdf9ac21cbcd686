package domain

import "time"

// MessageSummary 表示邮件列表接口返回的一条消息摘要。
type MessageSummary struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	BodyPreview string    `json:"bodyPreview"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message 表示一封完整的邮件记录。
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}
