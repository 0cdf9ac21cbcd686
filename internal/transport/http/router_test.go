package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inboxrelay/backend/internal/config"
	"inboxrelay/backend/internal/domain"
	"inboxrelay/backend/internal/engine"
	"inboxrelay/backend/internal/gate"
	"inboxrelay/backend/internal/monitoring"
	"inboxrelay/backend/internal/registry"
)

const testOperatorToken = "test-operator-token"

// stubProvider 总是成功的服务商客户端
type stubProvider struct {
	mailboxSeq int
}

func (p *stubProvider) CreateMailbox(ctx context.Context) (string, string, error) {
	p.mailboxSeq++
	return fmt.Sprintf("mbx%d", p.mailboxSeq), fmt.Sprintf("user%d@example.com", p.mailboxSeq), nil
}

func (p *stubProvider) ListMessages(ctx context.Context, mailboxID string, unreadOnly, newestFirst bool) ([]domain.MessageSummary, error) {
	return nil, nil
}

func (p *stubProvider) FetchMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	return nil, nil
}

// stubTransport 总是可达的下发通道
type stubTransport struct{}

func (t *stubTransport) Deliver(ctx context.Context, sub domain.Subscriber, text string) error {
	return nil
}

func (t *stubTransport) Reachable(ctx context.Context, sub domain.Subscriber) bool {
	return true
}

type testEnv struct {
	router   *gin.Engine
	gate     *gate.AccessGate
	registry *registry.SessionRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessionRegistry := registry.NewSessionRegistry(150, 75)
	accessGate := gate.NewAccessGate(nil)
	eng := engine.New(&stubProvider{}, sessionRegistry, accessGate, &stubTransport{}, monitoring.NewTestMetrics(), zap.NewNop(), engine.Config{
		DeliveryPacing: time.Millisecond,
		AuthBackoff:    time.Minute,
	})

	router := NewRouter(RouterDependencies{
		Config: &config.Config{
			Admin: config.AdminConfig{Token: testOperatorToken},
			CORS:  config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Engine:   eng,
		Gate:     accessGate,
		Registry: sessionRegistry,
		Metrics:  monitoring.NewTestMetrics(),
		Logger:   zap.NewNop(),
	})

	return &testEnv{
		router:   router,
		gate:     accessGate,
		registry: sessionRegistry,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, operator bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if operator {
		req.Header.Set("X-Operator-Token", testOperatorToken)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func registerBody(id string) gin.H {
	return gin.H{
		"id":       id,
		"name":     "测试用户",
		"callback": "http://callback.example.com/" + id,
	}
}

func TestSubscriberRoutes(t *testing.T) {
	t.Run("登记订阅者进入待审批", func(t *testing.T) {
		env := newTestEnv(t)

		recorder := env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)

		assert.Equal(t, http.StatusCreated, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "sub1", data["id"])
		assert.Equal(t, "pending", data["status"])
	})

	t.Run("重复登记不改变状态", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		require.NoError(t, env.gate.Approve("sub1"))

		recorder := env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)

		assert.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "approved", data["status"])
	})

	t.Run("缺少回调地址登记失败", func(t *testing.T) {
		env := newTestEnv(t)

		recorder := env.do(t, http.MethodPost, "/api/subscribers", gin.H{"id": "sub1"}, false)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("未批准订阅者申请邮箱被拒", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)

		recorder := env.do(t, http.MethodPost, "/api/subscribers/sub1/mailbox", nil, false)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("批准后申请邮箱成功", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		require.NoError(t, env.gate.Approve("sub1"))

		recorder := env.do(t, http.MethodPost, "/api/subscribers/sub1/mailbox", nil, false)

		assert.Equal(t, http.StatusCreated, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "mbx1", data["mailboxId"])
		assert.Equal(t, "user1@example.com", data["address"])
	})

	t.Run("查询会话", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		require.NoError(t, env.gate.Approve("sub1"))

		recorder := env.do(t, http.MethodGet, "/api/subscribers/sub1/session", nil, false)
		assert.Equal(t, http.StatusNotFound, recorder.Code, "尚无会话")

		env.do(t, http.MethodPost, "/api/subscribers/sub1/mailbox", nil, false)

		recorder = env.do(t, http.MethodGet, "/api/subscribers/sub1/session", nil, false)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("无会话时刷新返回404", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		require.NoError(t, env.gate.Approve("sub1"))

		recorder := env.do(t, http.MethodPost, "/api/subscribers/sub1/refresh", nil, false)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("有会话时刷新返回投递数量", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		require.NoError(t, env.gate.Approve("sub1"))
		env.do(t, http.MethodPost, "/api/subscribers/sub1/mailbox", nil, false)

		recorder := env.do(t, http.MethodPost, "/api/subscribers/sub1/refresh", nil, false)

		assert.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(0), data["delivered"])
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Run("缺少操作员令牌被拒", func(t *testing.T) {
		env := newTestEnv(t)

		recorder := env.do(t, http.MethodGet, "/admin/subscribers/pending", nil, false)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("错误的操作员令牌被拒", func(t *testing.T) {
		env := newTestEnv(t)

		req := httptest.NewRequest(http.MethodGet, "/admin/subscribers/pending", nil)
		req.Header.Set("X-Operator-Token", "wrong-token")
		recorder := httptest.NewRecorder()
		env.router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("待审批列表", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub2"), false)

		recorder := env.do(t, http.MethodGet, "/admin/subscribers/pending", nil, true)

		assert.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(2), data["count"])
	})

	t.Run("批准订阅者", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)

		recorder := env.do(t, http.MethodPost, "/admin/subscribers/sub1/approve", nil, true)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.True(t, env.gate.IsAuthorized("sub1"))
	})

	t.Run("批准不存在的订阅者返回404", func(t *testing.T) {
		env := newTestEnv(t)

		recorder := env.do(t, http.MethodPost, "/admin/subscribers/ghost/approve", nil, true)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("重复批准返回409", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		env.do(t, http.MethodPost, "/admin/subscribers/sub1/approve", nil, true)

		recorder := env.do(t, http.MethodPost, "/admin/subscribers/sub1/approve", nil, true)

		assert.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("拒绝后订阅者可重新登记", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)

		recorder := env.do(t, http.MethodPost, "/admin/subscribers/sub1/reject", nil, true)
		assert.Equal(t, http.StatusNoContent, recorder.Code)

		recorder = env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		assert.Equal(t, http.StatusCreated, recorder.Code, "拒绝后重新接触从待审批重新开始")
	})

	t.Run("移除订阅者清退会话", func(t *testing.T) {
		env := newTestEnv(t)
		env.do(t, http.MethodPost, "/api/subscribers", registerBody("sub1"), false)
		require.NoError(t, env.gate.Approve("sub1"))
		env.do(t, http.MethodPost, "/api/subscribers/sub1/mailbox", nil, false)

		recorder := env.do(t, http.MethodPost, "/admin/subscribers/sub1/remove", nil, true)

		assert.Equal(t, http.StatusNoContent, recorder.Code)
		assert.False(t, env.gate.IsAuthorized("sub1"))
		_, ok := env.registry.Get("sub1")
		assert.False(t, ok)
	})
}
