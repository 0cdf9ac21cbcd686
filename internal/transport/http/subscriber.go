package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"inboxrelay/backend/internal/domain"
	"inboxrelay/backend/internal/engine"
	"inboxrelay/backend/internal/gate"
	"inboxrelay/backend/internal/provider"
	"inboxrelay/backend/internal/registry"
	"inboxrelay/backend/internal/transport"
)

// Handler 聚合订阅者侧的 HTTP 处理逻辑。
type Handler struct {
	engine   *engine.Engine
	gate     *gate.AccessGate
	registry *registry.SessionRegistry
}

// NewHandler 创建订阅者处理器。
func NewHandler(eng *engine.Engine, accessGate *gate.AccessGate, sessionRegistry *registry.SessionRegistry) *Handler {
	return &Handler{
		engine:   eng,
		gate:     accessGate,
		registry: sessionRegistry,
	}
}

type registerRequest struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	Callback string `json:"callback" binding:"required,url"`
}

type subscriberResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Handle   string    `json:"handle,omitempty"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joinedAt"`
}

type sessionResponse struct {
	MailboxID string    `json:"mailboxId"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}

type refreshResponse struct {
	Delivered int `json:"delivered"`
}

// register 订阅者首次接触，登记为待审批。
//
// 重复登记是幂等的：已有记录时返回现有记录，不改变审批状态。
func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, created := h.gate.Register(domain.Subscriber{
		ID:       req.ID,
		Name:     req.Name,
		Handle:   req.Handle,
		Callback: req.Callback,
	})

	if created {
		Created(c, toSubscriberResponse(record))
		return
	}
	Success(c, toSubscriberResponse(record))
}

// getSession 查询订阅者当前的邮箱会话。
func (h *Handler) getSession(c *gin.Context) {
	subscriberID := c.Param("id")

	if !h.gate.IsAuthorized(subscriberID) {
		Forbidden(c, MsgNotApproved)
		return
	}

	session, ok := h.registry.Get(subscriberID)
	if !ok {
		NotFound(c, MsgNoActiveSession)
		return
	}

	Success(c, sessionResponse{
		MailboxID: session.MailboxID,
		Address:   session.Address,
		CreatedAt: session.CreatedAt,
	})
}

// createMailbox 为订阅者开通新的临时邮箱。
func (h *Handler) createMailbox(c *gin.Context) {
	subscriberID := c.Param("id")

	session, err := h.engine.RequestNewMailbox(c.Request.Context(), subscriberID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotAuthorized):
			Forbidden(c, MsgNotApproved)
		case errors.Is(err, engine.ErrSuspended),
			errors.Is(err, provider.ErrAuth),
			errors.Is(err, provider.ErrUnavailable),
			errors.Is(err, provider.ErrMalformedResponse):
			ServiceUnavailable(c, MsgServiceUnavailable)
		default:
			InternalError(c, MsgMailboxCreateFailed)
		}
		return
	}

	Created(c, sessionResponse{
		MailboxID: session.MailboxID,
		Address:   session.Address,
		CreatedAt: session.CreatedAt,
	})
}

// refresh 按需触发一次轮询周期。
func (h *Handler) refresh(c *gin.Context) {
	subscriberID := c.Param("id")

	delivered, err := h.engine.RequestRefresh(c.Request.Context(), subscriberID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotAuthorized):
			Forbidden(c, MsgNotApproved)
		case errors.Is(err, engine.ErrNoSession):
			NotFound(c, MsgNoActiveSession)
		case errors.Is(err, transport.ErrUnreachable):
			NotFound(c, MsgCallbackUnreachable)
		case errors.Is(err, engine.ErrSuspended),
			errors.Is(err, provider.ErrAuth),
			errors.Is(err, provider.ErrUnavailable),
			errors.Is(err, provider.ErrMalformedResponse):
			ServiceUnavailable(c, MsgServiceUnavailable)
		default:
			InternalError(c, MsgInternalError)
		}
		return
	}

	Success(c, refreshResponse{Delivered: delivered})
}

// toSubscriberResponse 转换订阅者记录为响应体。
func toSubscriberResponse(record domain.Subscriber) subscriberResponse {
	return subscriberResponse{
		ID:       record.ID,
		Name:     record.Name,
		Handle:   record.Handle,
		Status:   string(record.Status),
		JoinedAt: record.JoinedAt,
	}
}
