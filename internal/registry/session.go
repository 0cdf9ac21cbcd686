package registry

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"inboxrelay/backend/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRegistry 维护订阅者与临时邮箱会话的绑定，以及每个会话的去重集合。
//
// 注册表是会话的唯一所有者：所有读写都经过这里的方法并在内部加锁串行化，
// 定时轮询和按需刷新两条路径共用同一个去重集合，不会重复投递同一消息。
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState // subscriberID -> session

	highWater int
	lowWater  int
	random    *rand.Rand
}

// sessionState 单个订阅者的会话与已投递消息集合
type sessionState struct {
	session domain.MailboxSession
	seen    map[string]struct{}
}

// NewSessionRegistry 创建会话注册表。
//
// 参数:
//   - highWater: 去重集合的高水位，写入后超过该值触发淘汰
//   - lowWater: 淘汰后保留的条目数
func NewSessionRegistry(highWater, lowWater int) *SessionRegistry {
	if highWater <= 0 {
		highWater = 150
	}
	if lowWater <= 0 || lowWater >= highWater {
		lowWater = highWater / 2
	}

	return &SessionRegistry{
		sessions:  make(map[string]*sessionState),
		highWater: highWater,
		lowWater:  lowWater,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Open 为订阅者开启新会话，替换其之前的会话（每个订阅者最多一个活动邮箱）。
//
// 新会话携带一个空的去重集合，旧会话连同其集合一起丢弃。
func (r *SessionRegistry) Open(subscriberID, mailboxID, address string) domain.MailboxSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	session := domain.MailboxSession{
		MailboxID: mailboxID,
		Address:   address,
		CreatedAt: time.Now().UTC(),
	}
	r.sessions[subscriberID] = &sessionState{
		session: session,
		seen:    make(map[string]struct{}),
	}

	return session
}

// Get 返回订阅者当前的会话快照。
func (r *SessionRegistry) Get(subscriberID string) (domain.MailboxSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[subscriberID]
	if !ok {
		return domain.MailboxSession{}, false
	}
	return state.session, true
}

// Seen 判断消息是否已投递过。
func (r *SessionRegistry) Seen(subscriberID, messageID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[subscriberID]
	if !ok {
		return false
	}
	_, seen := state.seen[messageID]
	return seen
}

// MarkSeen 将消息标记为已投递。幂等：重复标记等价于标记一次。
//
// 写入后若集合超过高水位，随机淘汰一部分条目直到低水位。
// 淘汰牺牲了部分去重历史（被淘汰的消息可能被再次投递），换取内存上界。
//
// 返回值:
//   - bool: 本次调用是否新增了条目（已存在或会话不存在时为 false）
func (r *SessionRegistry) MarkSeen(subscriberID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[subscriberID]
	if !ok {
		return false
	}

	if _, exists := state.seen[messageID]; exists {
		return false
	}
	state.seen[messageID] = struct{}{}

	if len(state.seen) > r.highWater {
		r.evictLocked(state)
	}

	return true
}

// Remove 清除订阅者的会话及其全部去重历史。
func (r *SessionRegistry) Remove(subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, subscriberID)
}

// Subscribers 返回当前持有活动会话的订阅者 ID 快照。
func (r *SessionRegistry) Subscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len 返回当前活动会话数量。
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// SeenCount 返回订阅者去重集合的当前大小。
func (r *SessionRegistry) SeenCount(subscriberID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.sessions[subscriberID]
	if !ok {
		return 0
	}
	return len(state.seen)
}

// evictLocked 随机淘汰去重集合中的条目直到低水位。调用方必须持有写锁。
func (r *SessionRegistry) evictLocked(state *sessionState) {
	keys := make([]string, 0, len(state.seen))
	for key := range state.seen {
		keys = append(keys, key)
	}
	r.random.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	for _, key := range keys {
		if len(state.seen) <= r.lowWater {
			break
		}
		delete(state.seen, key)
	}
}
