package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"inboxrelay/backend/internal/domain"
)

// 推送事件类型
const (
	eventTypeMessage = "message"
	eventTypePing    = "ping"
)

// webhookEvent 推送到订阅者回调地址的事件体
type webhookEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	SubscriberID string    `json:"subscriberId"`
	Text         string    `json:"text,omitempty"`
	SentAt       time.Time `json:"sentAt"`
}

// WebhookTransport 通过订阅者注册的回调地址推送通知。
//
// 回调端返回 2xx 视为投递确认；404/410 或连接失败视为订阅者不可达；
// 其余状态视为瞬时失败，由调用方决定是否重投。
type WebhookTransport struct {
	http *resty.Client
	log  *zap.Logger
}

// NewWebhookTransport 创建 Webhook 下发通道。
func NewWebhookTransport(timeout time.Duration, log *zap.Logger) *WebhookTransport {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0)

	return &WebhookTransport{
		http: httpClient,
		log:  log,
	}
}

// Deliver 投递一条通知文本。
func (t *WebhookTransport) Deliver(ctx context.Context, sub domain.Subscriber, text string) error {
	return t.push(ctx, sub, webhookEvent{
		ID:           uuid.NewString(),
		Type:         eventTypeMessage,
		SubscriberID: sub.ID,
		Text:         text,
		SentAt:       time.Now().UTC(),
	})
}

// Reachable 通过一次 ping 事件探测订阅者是否仍可达。
//
// 只有明确的不可达信号才返回 false，瞬时失败不触发清退。
func (t *WebhookTransport) Reachable(ctx context.Context, sub domain.Subscriber) bool {
	err := t.push(ctx, sub, webhookEvent{
		ID:           uuid.NewString(),
		Type:         eventTypePing,
		SubscriberID: sub.ID,
		SentAt:       time.Now().UTC(),
	})
	if err == nil {
		return true
	}
	if errors.Is(err, ErrUnreachable) {
		return false
	}

	t.log.Debug("reachability probe transient failure",
		zap.String("subscriber_id", sub.ID),
		zap.Error(err),
	)
	return true
}

// push 向回调地址发送一个事件。
func (t *WebhookTransport) push(ctx context.Context, sub domain.Subscriber, event webhookEvent) error {
	if sub.Callback == "" {
		return fmt.Errorf("%w: no callback registered", ErrUnreachable)
	}

	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(event).
		Post(sub.Callback)
	if err != nil {
		// 连接不上回调端，视为订阅者不可达
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: callback returned HTTP %d", ErrUnreachable, status)
	default:
		return fmt.Errorf("callback returned HTTP %d", status)
	}
}
