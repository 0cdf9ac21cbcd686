package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"inboxrelay/backend/internal/config"
	"inboxrelay/backend/internal/domain"
)

// Client 封装外部邮件服务商的 HTTP API。
//
// 客户端自身无状态：重试、退避与错误归类都发生在单次调用内部，
// 跨调用的节流（例如凭证被拒后的全局暂停）由调用方负责。
type Client struct {
	http       *resty.Client
	retryCount int
	retryDelay time.Duration
	log        *zap.Logger
}

// NewClient 创建服务商客户端。
func NewClient(cfg config.ProviderConfig, log *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("X-API-Key", cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(0) // 重试由 Client 自己控制，便于按错误类别区分

	return &Client{
		http:       httpClient,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}
}

// mailboxPayload 创建邮箱接口的响应体
type mailboxPayload struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
}

// CreateMailbox 在服务商处创建一个新的临时邮箱。
//
// 返回值:
//   - string: 邮箱 ID
//   - string: 邮箱地址
func (c *Client) CreateMailbox(ctx context.Context) (string, string, error) {
	body, err := c.do(ctx, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Post("/inboxes")
	})
	if err != nil {
		return "", "", err
	}

	var payload mailboxPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("%w: decode create mailbox response: %v", ErrMalformedResponse, err)
	}
	if payload.ID == "" || payload.EmailAddress == "" {
		return "", "", fmt.Errorf("%w: create mailbox response missing id or emailAddress", ErrMalformedResponse)
	}

	return payload.ID, payload.EmailAddress, nil
}

// ListMessages 列出指定邮箱内的消息摘要。
//
// 空结果是正常的成功状态，返回空切片而不是错误。
//
// 参数:
//   - mailboxID: 服务商分配的邮箱 ID
//   - unreadOnly: 只列出未读消息
//   - newestFirst: 按到达时间倒序排列
func (c *Client) ListMessages(ctx context.Context, mailboxID string, unreadOnly, newestFirst bool) ([]domain.MessageSummary, error) {
	sort := "ASC"
	if newestFirst {
		sort = "DESC"
	}

	body, err := c.do(ctx, func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetQueryParam("unreadOnly", fmt.Sprintf("%t", unreadOnly)).
			SetQueryParam("sort", sort).
			Get(fmt.Sprintf("/inboxes/%s/emails", mailboxID))
	})
	if err != nil {
		return nil, err
	}

	var summaries []domain.MessageSummary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("%w: decode message list: %v", ErrMalformedResponse, err)
	}
	for _, s := range summaries {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: message summary missing id", ErrMalformedResponse)
		}
	}

	return summaries, nil
}

// FetchMessage 获取一封完整的邮件记录。
func (c *Client) FetchMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	body, err := c.do(ctx, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).Get(fmt.Sprintf("/emails/%s", messageID))
	})
	if err != nil {
		return nil, err
	}

	var message domain.Message
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("%w: decode message detail: %v", ErrMalformedResponse, err)
	}
	if message.ID == "" {
		return nil, fmt.Errorf("%w: message detail missing id", ErrMalformedResponse)
	}

	return &message, nil
}

// do 执行一次服务商调用并做错误归类。
//
// 归类规则（对三个接口统一生效）：
//   - HTTP 401       -> ErrAuth，不重试
//   - HTTP 5xx/网络错误 -> 线性递增延迟重试，耗尽后归类为 ErrUnavailable
//   - 其他非 2xx     -> ErrMalformedResponse，不重试
func (c *Client) do(ctx context.Context, call func() (*resty.Response, error)) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryCount; attempt++ {
		if attempt > 1 {
			// 线性递增: retryDelay * (attempt-1)
			delay := c.retryDelay * time.Duration(attempt-1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := call()
		if err != nil {
			// 连接失败或超时，按瞬时错误处理
			lastErr = err
			c.log.Debug("provider request failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: HTTP 401 from %s", ErrAuth, resp.Request.URL)
		case status >= 500:
			lastErr = fmt.Errorf("HTTP %d from %s", status, resp.Request.URL)
			c.log.Debug("provider returned server error",
				zap.Int("attempt", attempt),
				zap.Int("status", status),
			)
			continue
		case status < 200 || status >= 300:
			return nil, fmt.Errorf("%w: unexpected HTTP %d from %s", ErrMalformedResponse, status, resp.Request.URL)
		}

		return resp.Body(), nil
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", ErrUnavailable, c.retryCount, lastErr)
}
