package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxrelay/backend/internal/domain"
)

func newTestTransport(t *testing.T, handler http.Handler) (*WebhookTransport, domain.Subscriber) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sub := domain.Subscriber{
		ID:       "sub1",
		Name:     "测试用户",
		Callback: server.URL + "/hook",
	}
	return NewWebhookTransport(2*time.Second, zap.NewNop()), sub
}

func TestWebhookTransport_Deliver(t *testing.T) {
	t.Run("投递成功并携带完整事件", func(t *testing.T) {
		var got webhookEvent
		tr, sub := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))

		err := tr.Deliver(context.Background(), sub, "新邮件通知")

		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "message", got.Type)
		assert.Equal(t, "sub1", got.SubscriberID)
		assert.Equal(t, "新邮件通知", got.Text)
		assert.False(t, got.SentAt.IsZero())
	})

	t.Run("404视为订阅者不可达", func(t *testing.T) {
		tr, sub := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		err := tr.Deliver(context.Background(), sub, "text")

		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("连接失败视为订阅者不可达", func(t *testing.T) {
		tr := NewWebhookTransport(200*time.Millisecond, zap.NewNop())
		sub := domain.Subscriber{ID: "sub1", Callback: "http://127.0.0.1:1/hook"}

		err := tr.Deliver(context.Background(), sub, "text")

		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("5xx是瞬时失败而非不可达", func(t *testing.T) {
		tr, sub := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		err := tr.Deliver(context.Background(), sub, "text")

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnreachable)
	})

	t.Run("未注册回调地址视为不可达", func(t *testing.T) {
		tr := NewWebhookTransport(time.Second, zap.NewNop())
		sub := domain.Subscriber{ID: "sub1"}

		err := tr.Deliver(context.Background(), sub, "text")

		assert.ErrorIs(t, err, ErrUnreachable)
	})
}

func TestWebhookTransport_Reachable(t *testing.T) {
	t.Run("回调端正常响应ping视为可达", func(t *testing.T) {
		var got webhookEvent
		tr, sub := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))

		reachable := tr.Reachable(context.Background(), sub)

		assert.True(t, reachable)
		assert.Equal(t, "ping", got.Type)
		assert.Empty(t, got.Text)
	})

	t.Run("回调端已下线视为不可达", func(t *testing.T) {
		tr, sub := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))

		reachable := tr.Reachable(context.Background(), sub)

		assert.False(t, reachable)
	})

	t.Run("瞬时失败不触发清退", func(t *testing.T) {
		tr, sub := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

		reachable := tr.Reachable(context.Background(), sub)

		assert.True(t, reachable)
	})
}
