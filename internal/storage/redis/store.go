package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/storage"
)

// DefaultRetention 是每封邮件在键值存储中的保留时长。
const DefaultRetention = 24 * time.Hour

// scanBatch 是每次 SCAN 建议返回的键数量。
const scanBatch = 100

// Store 以独立键保存每封邮件：email:{domain}:{login}:{id}，值为 JSON，
// 过期完全交给 Redis 的 TTL，没有容量上限。
type Store struct {
	rdb       *goredis.Client
	retention time.Duration
	recorder  storage.Recorder
}

// record 是写入 Redis 的值。
type record struct {
	domain.Message
	Login  string `json:"login"`
	Domain string `json:"domain"`
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建基于 Redis 的存储，retention <= 0 时使用 DefaultRetention。
func NewStore(rdb *goredis.Client, retention time.Duration, recorder storage.Recorder) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		rdb:       rdb,
		retention: retention,
		recorder:  storage.OrNop(recorder),
	}
}

// MessageKey 返回单封邮件的键。
func MessageKey(id domain.MailboxIdentity, messageID string) string {
	return mailboxPrefix(id) + messageID
}

// mailboxPrefix 返回邮箱的键前缀。身份校验已排除 ':' 与通配符，
// 因此前缀可以直接用作 SCAN 的 MATCH 模式。
func mailboxPrefix(id domain.MailboxIdentity) string {
	return fmt.Sprintf("email:%s:%s:", id.Domain, id.Login)
}

// Put 写入一封邮件并设置过期时间；ID 为空时生成随机 UUID。
func (s *Store) Put(ctx context.Context, id domain.MailboxIdentity, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	data, err := json.Marshal(record{Message: *msg, Login: id.Login, Domain: id.Domain})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err := s.rdb.Set(ctx, MessageKey(id, msg.ID), data, s.retention).Err(); err != nil {
		return unavailable("set", err)
	}

	s.recorder.RecordDelivery(msg.ReceivedAt)
	return nil
}

// List 枚举邮箱前缀下所有未过期的邮件，返回不含正文的摘要，按接收时间倒序。
func (s *Store) List(ctx context.Context, id domain.MailboxIdentity) ([]domain.Message, error) {
	keys, err := s.scanKeys(ctx, mailboxPrefix(id)+"*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []domain.Message{}, nil
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("mget", err)
	}

	result := make([]domain.Message, 0, len(values))
	for _, v := range values {
		// SCAN 与 MGET 之间过期的键返回 nil
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		result = append(result, rec.Message.Summary())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// Get 读取单封邮件，不存在或已过期时返回 domain.ErrNotFound。
func (s *Store) Get(ctx context.Context, id domain.MailboxIdentity, messageID string) (*domain.Message, error) {
	raw, err := s.rdb.Get(ctx, MessageKey(id, messageID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("get", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", messageID, err)
	}
	return &rec.Message, nil
}

// Health 检查 Redis 连接。
func (s *Store) Health(ctx context.Context) error {
	return Ping(ctx, s.rdb)
}

// Close 关闭 Redis 连接。
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	seen := make(map[string]struct{})
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		// SCAN 可能重复返回同一个键
		for _, k := range batch {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", domain.ErrBackendUnavailable, op, err)
}
