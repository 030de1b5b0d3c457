package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/storage"
)

// DefaultCapacity 是单个邮箱保留的最大邮件数。
const DefaultCapacity = 50

// Store 使用进程内存保存邮箱，每个邮箱是按时间倒序、容量受限的列表。
//
// 进程重启后数据丢失；一次性邮箱场景下这是可接受的。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[domain.MailboxKey]*mailbox
	capacity  int
	recorder  storage.Recorder
}

// mailbox 持有单个邮箱的邮件，写入方在各自邮箱的锁上串行化，
// 不同邮箱之间互不阻塞。
type mailbox struct {
	mu       sync.RWMutex
	messages []domain.Message // newest first
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例，capacity <= 0 时使用 DefaultCapacity。
func NewStore(capacity int, recorder storage.Recorder) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		mailboxes: make(map[domain.MailboxKey]*mailbox),
		capacity:  capacity,
		recorder:  storage.OrNop(recorder),
	}
}

// Put 将邮件插入邮箱头部，超出容量时淘汰最旧的一封。
func (s *Store) Put(_ context.Context, id domain.MailboxIdentity, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	mb := s.mailboxFor(id.Key())

	mb.mu.Lock()
	mb.messages = append(mb.messages, domain.Message{})
	copy(mb.messages[1:], mb.messages)
	mb.messages[0] = *msg
	evicted := 0
	if len(mb.messages) > s.capacity {
		evicted = len(mb.messages) - s.capacity
		mb.messages = mb.messages[:s.capacity]
	}
	mb.mu.Unlock()

	s.recorder.RecordDelivery(msg.ReceivedAt)
	for i := 0; i < evicted; i++ {
		s.recorder.RecordEviction()
	}
	return nil
}

// List 返回邮箱当前内容的快照（最新的在前）。
func (s *Store) List(_ context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	mb := s.lookup(id.Key())
	if mb == nil {
		return []domain.Message{}, nil
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	result := make([]domain.Message, len(mb.messages))
	copy(result, mb.messages)
	return result, nil
}

// Get 获取单封邮件。
func (s *Store) Get(_ context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	mb := s.lookup(id.Key())
	if mb == nil {
		return nil, domain.ErrNotFound
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for i := range mb.messages {
		if mb.messages[i].ID == messageID {
			msg := mb.messages[i]
			return &msg, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Len 返回邮箱当前的邮件数量。
func (s *Store) Len(id domain.MailboxIdentity) int {
	mb := s.lookup(id.Key())
	if mb == nil {
		return 0
	}
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return len(mb.messages)
}

// Health 内存存储始终可用。
func (s *Store) Health(context.Context) error {
	return nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

func (s *Store) lookup(key domain.MailboxKey) *mailbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mailboxes[key]
}

// mailboxFor 返回 key 对应的邮箱，首次投递时惰性创建。
func (s *Store) mailboxFor(key domain.MailboxKey) *mailbox {
	if mb := s.lookup(key); mb != nil {
		return mb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, ok := s.mailboxes[key]; ok {
		return mb
	}
	mb := &mailbox{messages: make([]domain.Message, 0, s.capacity+1)}
	s.mailboxes[key] = mb
	return mb
}
