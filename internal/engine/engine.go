package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"inboxrelay/backend/internal/domain"
	"inboxrelay/backend/internal/gate"
	"inboxrelay/backend/internal/monitoring"
	"inboxrelay/backend/internal/provider"
	"inboxrelay/backend/internal/registry"
	"inboxrelay/backend/internal/transport"
)

var (
	// ErrNotAuthorized 订阅者未通过准入闸门
	ErrNotAuthorized = errors.New("subscriber not authorized")
	// ErrNoSession 订阅者没有活动的邮箱会话
	ErrNoSession = errors.New("no active mailbox session")
	// ErrSuspended 服务商凭证被拒后全局暂停期内拒绝调用
	ErrSuspended = errors.New("provider calls suspended")
)

// MailProvider 是通知引擎对邮件服务商客户端的依赖。
type MailProvider interface {
	CreateMailbox(ctx context.Context) (string, string, error)
	ListMessages(ctx context.Context, mailboxID string, unreadOnly, newestFirst bool) ([]domain.MessageSummary, error)
	FetchMessage(ctx context.Context, messageID string) (*domain.Message, error)
}

// Config 通知引擎的行为参数
type Config struct {
	DeliveryPacing time.Duration // 同一订阅者连续投递之间的最小间隔
	AuthBackoff    time.Duration // 凭证被拒后暂停全部服务商调用的时长
}

// Engine 协调轮询、去重与投递。
//
// 定时轮询和按需刷新走同一个 PollSubscriber 周期，并按订阅者串行化，
// 两条路径共享会话注册表的去重集合，同一消息不会被投递两次。
// 服务商凭证是全进程共享的：任何一次 401 都会暂停所有后续服务商调用。
type Engine struct {
	provider  MailProvider
	registry  *registry.SessionRegistry
	gate      *gate.AccessGate
	transport transport.Transport
	metrics   *monitoring.Metrics
	log       *zap.Logger

	pacing      time.Duration
	authBackoff time.Duration

	// 凭证暂停状态，进程级
	suspendMu      sync.Mutex
	suspendedUntil time.Time

	// 按订阅者串行化轮询周期
	cycleMu    sync.Mutex
	cycleLocks map[string]*sync.Mutex
}

// New 创建通知引擎。
func New(
	mailProvider MailProvider,
	sessionRegistry *registry.SessionRegistry,
	accessGate *gate.AccessGate,
	deliveryTransport transport.Transport,
	metrics *monitoring.Metrics,
	log *zap.Logger,
	cfg Config,
) *Engine {
	if cfg.AuthBackoff <= 0 {
		cfg.AuthBackoff = 10 * time.Minute
	}

	return &Engine{
		provider:    mailProvider,
		registry:    sessionRegistry,
		gate:        accessGate,
		transport:   deliveryTransport,
		metrics:     metrics,
		log:         log,
		pacing:      cfg.DeliveryPacing,
		authBackoff: cfg.AuthBackoff,
		cycleLocks:  make(map[string]*sync.Mutex),
	}
}

// RequestNewMailbox 为订阅者开通新的临时邮箱，替换其旧会话。
func (e *Engine) RequestNewMailbox(ctx context.Context, subscriberID string) (domain.MailboxSession, error) {
	if !e.gate.IsAuthorized(subscriberID) {
		return domain.MailboxSession{}, ErrNotAuthorized
	}
	if e.Suspended() {
		return domain.MailboxSession{}, ErrSuspended
	}

	mailboxID, address, err := e.provider.CreateMailbox(ctx)
	if err != nil {
		return domain.MailboxSession{}, e.noteProviderError(err)
	}

	session := e.registry.Open(subscriberID, mailboxID, address)
	e.metrics.RecordMailboxCreated()
	e.refreshGauges()

	e.log.Info("mailbox provisioned",
		zap.String("subscriber_id", subscriberID),
		zap.String("mailbox_id", mailboxID),
		zap.String("address", address),
	)

	return session, nil
}

// RequestRefresh 按需触发一次轮询周期（与定时轮询完全相同的流程）。
//
// 返回值:
//   - int: 本次新投递的消息数量
func (e *Engine) RequestRefresh(ctx context.Context, subscriberID string) (int, error) {
	return e.PollSubscriber(ctx, subscriberID)
}

// PollSubscriber 对单个订阅者执行一次完整的轮询周期：
// 授权检查 -> 列出未读 -> 去重 -> 逐条取详情并投递 -> 确认后标记已投递。
//
// 同一订阅者的周期串行执行；定时与按需两条路径由此互斥。
func (e *Engine) PollSubscriber(ctx context.Context, subscriberID string) (int, error) {
	lock := e.cycleLock(subscriberID)
	lock.Lock()
	defer lock.Unlock()

	e.metrics.RecordPollCycle()

	// 资格随时可能被撤销；失去资格时释放会话
	if !e.gate.IsAuthorized(subscriberID) {
		e.registry.Remove(subscriberID)
		return 0, ErrNotAuthorized
	}

	session, ok := e.registry.Get(subscriberID)
	if !ok {
		return 0, ErrNoSession
	}

	if e.Suspended() {
		return 0, ErrSuspended
	}

	summaries, err := e.provider.ListMessages(ctx, session.MailboxID, true, true)
	if err != nil {
		return 0, e.noteProviderError(err)
	}
	if len(summaries) == 0 {
		return 0, nil
	}

	sub, err := e.gate.Get(subscriberID)
	if err != nil {
		// 管理员身份可能没有登记记录，仍允许轮询但无法投递
		sub = domain.Subscriber{ID: subscriberID}
	}

	// 投递节流：同一订阅者的连续投递之间至少间隔 pacing
	limiter := rate.NewLimiter(rate.Every(e.pacing), 1)
	delivered := 0

	for _, summary := range summaries {
		if e.registry.Seen(subscriberID, summary.ID) {
			continue
		}

		message, err := e.provider.FetchMessage(ctx, summary.ID)
		if err != nil {
			if errors.Is(err, provider.ErrAuth) {
				// 凭证共享，暂停全局调用；本订阅者剩余消息放弃
				e.noteProviderError(err)
				break
			}
			e.metrics.RecordProviderError(errorLabel(err))
			e.log.Warn("fetch message detail failed, skipping",
				zap.String("subscriber_id", subscriberID),
				zap.String("message_id", summary.ID),
				zap.Error(err),
			)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			break
		}

		if err := e.transport.Deliver(ctx, sub, FormatMessage(message)); err != nil {
			e.metrics.RecordDeliveryFailure()
			if errors.Is(err, transport.ErrUnreachable) {
				e.log.Info("subscriber unreachable, purging",
					zap.String("subscriber_id", subscriberID),
				)
				e.PurgeSubscriber(subscriberID)
				return delivered, err
			}
			// 瞬时投递失败：不标记已投递，保持顺序，留待下个周期重投
			e.log.Warn("delivery failed, will retry next cycle",
				zap.String("subscriber_id", subscriberID),
				zap.String("message_id", summary.ID),
				zap.Error(err),
			)
			break
		}

		// 只有确认投递后才标记，未确认的消息下个周期重试
		e.registry.MarkSeen(subscriberID, summary.ID)
		e.metrics.RecordDelivery()
		delivered++
	}

	return delivered, nil
}

// Sweep 对所有持有活动会话的订阅者执行一轮轮询。
//
// 凭证被拒会中止整轮：剩余订阅者的周期留到暂停结束后的下一轮。
// 其他服务商错误只影响当前订阅者，记录日志后继续。
func (e *Engine) Sweep(ctx context.Context) {
	start := time.Now()

	for _, subscriberID := range e.registry.Subscribers() {
		if ctx.Err() != nil {
			break
		}
		if e.Suspended() {
			break
		}

		_, err := e.PollSubscriber(ctx, subscriberID)
		switch {
		case err == nil:
		case errors.Is(err, provider.ErrAuth):
			e.log.Error("provider credential rejected, aborting sweep",
				zap.String("subscriber_id", subscriberID),
			)
		case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNoSession), errors.Is(err, ErrSuspended):
			// 正常的周期跳过，不打扰订阅者
		default:
			e.log.Warn("poll cycle failed",
				zap.String("subscriber_id", subscriberID),
				zap.Error(err),
			)
		}
	}

	e.metrics.RecordSweep(time.Since(start))
	e.refreshGauges()
}

// LivenessSweep 巡检所有活动订阅者的可达性，清退收不到通知的订阅者。
func (e *Engine) LivenessSweep(ctx context.Context) {
	for _, subscriberID := range e.registry.Subscribers() {
		if ctx.Err() != nil {
			return
		}

		sub, err := e.gate.Get(subscriberID)
		if err != nil {
			// 会话没有对应的闸门记录，直接释放
			e.registry.Remove(subscriberID)
			continue
		}

		if !e.transport.Reachable(ctx, sub) {
			e.log.Info("subscriber no longer reachable, purging",
				zap.String("subscriber_id", subscriberID),
			)
			e.PurgeSubscriber(subscriberID)
		}
	}

	e.refreshGauges()
}

// PurgeSubscriber 清退订阅者：会话与审批状态一并清空。
//
// 管理移除、投递不可达和可达性巡检共用这一条路径。
// 固定顺序：先会话注册表，后准入闸门。
func (e *Engine) PurgeSubscriber(subscriberID string) {
	e.registry.Remove(subscriberID)
	if err := e.gate.Remove(subscriberID); err != nil && !errors.Is(err, gate.ErrSubscriberNotFound) {
		e.log.Warn("gate removal failed during purge",
			zap.String("subscriber_id", subscriberID),
			zap.Error(err),
		)
	}

	e.cycleMu.Lock()
	delete(e.cycleLocks, subscriberID)
	e.cycleMu.Unlock()

	e.metrics.RecordSubscriberPurged()
	e.refreshGauges()
}

// Suspended 判断服务商调用当前是否处于全局暂停期。
func (e *Engine) Suspended() bool {
	e.suspendMu.Lock()
	defer e.suspendMu.Unlock()

	return time.Now().Before(e.suspendedUntil)
}

// noteProviderError 记录服务商错误；凭证被拒时进入全局暂停。
func (e *Engine) noteProviderError(err error) error {
	e.metrics.RecordProviderError(errorLabel(err))

	if errors.Is(err, provider.ErrAuth) {
		e.suspendMu.Lock()
		alreadySuspended := time.Now().Before(e.suspendedUntil)
		e.suspendedUntil = time.Now().Add(e.authBackoff)
		e.suspendMu.Unlock()

		if !alreadySuspended {
			e.metrics.RecordAuthSuspension()
			// 需要运维介入更换凭证，订阅者看不到细节
			e.log.Error("provider credential rejected, suspending all provider calls",
				zap.Duration("backoff", e.authBackoff),
			)
		}
	}

	return err
}

// cycleLock 返回订阅者专属的周期互斥锁。
func (e *Engine) cycleLock(subscriberID string) *sync.Mutex {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	lock, ok := e.cycleLocks[subscriberID]
	if !ok {
		lock = &sync.Mutex{}
		e.cycleLocks[subscriberID] = lock
	}
	return lock
}

// refreshGauges 同步订阅者与会话数量指标。
func (e *Engine) refreshGauges() {
	e.metrics.UpdateSessionsActive(e.registry.Len())
	e.metrics.UpdateSubscribersApproved(e.gate.ApprovedCount())
}

// errorLabel 将服务商错误映射为指标标签。
func errorLabel(err error) string {
	switch {
	case errors.Is(err, provider.ErrAuth):
		return "auth"
	case errors.Is(err, provider.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, provider.ErrMalformedResponse):
		return "malformed"
	default:
		return "other"
	}
}

// FormatMessage 生成发送给订阅者的通知文本。
func FormatMessage(message *domain.Message) string {
	return fmt.Sprintf("📧 新邮件\n发件人: %s\n主题: %s\n时间: %s\n\n%s",
		message.From,
		message.Subject,
		message.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		message.Body,
	)
}
