package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"inboxrelay/backend/internal/engine"
	"inboxrelay/backend/internal/gate"
)

// AdminHandler 管理端点处理器。
type AdminHandler struct {
	engine *engine.Engine
	gate   *gate.AccessGate
}

// NewAdminHandler 创建管理处理器。
func NewAdminHandler(eng *engine.Engine, accessGate *gate.AccessGate) *AdminHandler {
	return &AdminHandler{
		engine: eng,
		gate:   accessGate,
	}
}

type pendingListResponse struct {
	Items []subscriberResponse `json:"items"`
	Count int                  `json:"count"`
}

// listPending 列出全部待审批的订阅者。
func (h *AdminHandler) listPending(c *gin.Context) {
	pending := h.gate.Pending()

	items := make([]subscriberResponse, 0, len(pending))
	for _, record := range pending {
		items = append(items, toSubscriberResponse(record))
	}

	Success(c, pendingListResponse{
		Items: items,
		Count: len(items),
	})
}

// approve 批准待审批的订阅者。
func (h *AdminHandler) approve(c *gin.Context) {
	subscriberID := c.Param("id")

	if err := h.gate.Approve(subscriberID); err != nil {
		switch {
		case errors.Is(err, gate.ErrSubscriberNotFound):
			NotFound(c, GetErrorMessage(err))
		case errors.Is(err, gate.ErrInvalidTransition):
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgApproveFailed)
		}
		return
	}

	record, err := h.gate.Get(subscriberID)
	if err != nil {
		InternalError(c, MsgApproveFailed)
		return
	}

	Success(c, toSubscriberResponse(record))
}

// reject 拒绝待审批的订阅者，记录被丢弃。
func (h *AdminHandler) reject(c *gin.Context) {
	subscriberID := c.Param("id")

	if err := h.gate.Reject(subscriberID); err != nil {
		switch {
		case errors.Is(err, gate.ErrSubscriberNotFound):
			NotFound(c, GetErrorMessage(err))
		case errors.Is(err, gate.ErrInvalidTransition):
			Conflict(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgRejectFailed)
		}
		return
	}

	NoContent(c)
}

// remove 移除订阅者：审批状态与邮箱会话一并清退。
func (h *AdminHandler) remove(c *gin.Context) {
	subscriberID := c.Param("id")

	if _, err := h.gate.Get(subscriberID); err != nil {
		NotFound(c, GetErrorMessage(err))
		return
	}

	h.engine.PurgeSubscriber(subscriberID)

	NoContent(c)
}
