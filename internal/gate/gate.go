package gate

import (
	"errors"
	"sync"
	"time"

	"inboxrelay/backend/internal/domain"
)

var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrInvalidTransition  = errors.New("invalid approval transition")
)

// AccessGate 是所有特权操作的唯一授权检查点。
//
// 每个订阅者的状态机: 未知 -> pending -> approved（管理员批准）。
// 拒绝与移除都会清空记录，订阅者再次接触时从 pending 重新开始；
// 状态只能由管理操作改变，通知引擎只读不写。
type AccessGate struct {
	mu      sync.RWMutex
	records map[string]*domain.Subscriber // subscriberID -> record

	adminIDs map[string]struct{} // 始终放行的管理员身份
}

// NewAccessGate 创建准入闸门。
func NewAccessGate(adminIDs []string) *AccessGate {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return &AccessGate{
		records:  make(map[string]*domain.Subscriber),
		adminIDs: admins,
	}
}

// Register 记录订阅者的首次接触，生成待审批记录。
//
// 已有记录时返回现有记录，不改变其状态。
//
// 返回值:
//   - domain.Subscriber: 当前记录快照
//   - bool: 本次调用是否新建了记录
func (g *AccessGate) Register(sub domain.Subscriber) (domain.Subscriber, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.records[sub.ID]; ok {
		return *existing, false
	}

	record := sub
	record.Status = domain.StatusPending
	if record.JoinedAt.IsZero() {
		record.JoinedAt = time.Now().UTC()
	}
	g.records[sub.ID] = &record

	return record, true
}

// Approve 管理操作：批准待审批的订阅者。
func (g *AccessGate) Approve(subscriberID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.records[subscriberID]
	if !ok {
		return ErrSubscriberNotFound
	}
	if record.Status != domain.StatusPending {
		return ErrInvalidTransition
	}

	record.Status = domain.StatusApproved
	return nil
}

// Reject 管理操作：拒绝待审批的订阅者，记录被丢弃。
func (g *AccessGate) Reject(subscriberID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.records[subscriberID]
	if !ok {
		return ErrSubscriberNotFound
	}
	if record.Status != domain.StatusPending {
		return ErrInvalidTransition
	}

	delete(g.records, subscriberID)
	return nil
}

// Remove 管理操作：移除订阅者，全部状态清空。
//
// 移除等价于回到未知状态，之后的接触会重新进入 pending。
func (g *AccessGate) Remove(subscriberID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.records[subscriberID]; !ok {
		return ErrSubscriberNotFound
	}

	delete(g.records, subscriberID)
	return nil
}

// IsAuthorized 判断订阅者当前是否可以使用特权操作。
//
// 只有 approved 状态返回 true；配置的管理员身份无条件放行。
func (g *AccessGate) IsAuthorized(subscriberID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.adminIDs[subscriberID]; ok {
		return true
	}

	record, ok := g.records[subscriberID]
	return ok && record.Status == domain.StatusApproved
}

// Get 返回订阅者记录快照。
func (g *AccessGate) Get(subscriberID string) (domain.Subscriber, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	record, ok := g.records[subscriberID]
	if !ok {
		return domain.Subscriber{}, ErrSubscriberNotFound
	}
	return *record, nil
}

// Pending 返回全部待审批记录的快照。
func (g *AccessGate) Pending() []domain.Subscriber {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]domain.Subscriber, 0)
	for _, record := range g.records {
		if record.Status == domain.StatusPending {
			result = append(result, *record)
		}
	}
	return result
}

// ApprovedCount 返回当前已批准的订阅者数量。
func (g *AccessGate) ApprovedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, record := range g.records {
		if record.Status == domain.StatusApproved {
			count++
		}
	}
	return count
}
