/**
 * 账本存储后端
 * @author: sun977
 * @date: 2025.11.04
 * @description: Store 抽象及内存实现，按配置构造 file/redis/sql 后端
 */
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"reconledger/internal/config"
)

// 后端名称
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// Store 账本持久化接口
// Load 必须按索引升序返回全部条目；Append 返回 nil 即表示条目已持久化。
// Append 须在同一原子操作内确认存储的链尾就是 entry 的前驱，否则返回 ErrStaleTail 且不写入
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, entry Entry) error
	Close() error
}

// MemoryStore 内存存储，用于测试与无持久化场景
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var tail *Entry
	if n := len(s.entries); n > 0 {
		tail = &s.entries[n-1]
	}
	if err := checkTail(tail, entry); err != nil {
		return err
	}
	s.entries = append(s.entries, entry.clone())
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// checkTail 确认 next 紧接在存储链尾之后，tail 为 nil 表示存储为空
func checkTail(tail *Entry, next Entry) error {
	if tail == nil {
		if next.Index == 1 && next.PreviousHash == GenesisPreviousHash {
			return nil
		}
		return fmt.Errorf("%w: store is empty, refusing entry %d", ErrStaleTail, next.Index)
	}
	if tail.Index+1 != next.Index || tail.Hash != next.PreviousHash {
		return fmt.Errorf("%w: store tail is entry %d, refusing entry %d", ErrStaleTail, tail.Index, next.Index)
	}
	return nil
}

// NewStore 根据配置创建存储后端
func NewStore(ctx context.Context, cfg *config.LedgerConfig) (Store, error) {
	if cfg == nil {
		return NewMemoryStore(), nil
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.FilePath)
	case BackendRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("ledger backend redis requires ledger.redis section")
		}
		return NewRedisStore(ctx, cfg.Redis)
	case BackendSQL:
		if cfg.SQL == nil {
			return nil, fmt.Errorf("ledger backend sql requires ledger.sql section")
		}
		return NewSQLStore(cfg.SQL.Driver, cfg.SQL.DSN)
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", cfg.Backend)
	}
}

// OpenFromConfig 构造存储并打开账本；VerifyOnLoad 时加载后立即校验
func OpenFromConfig(ctx context.Context, cfg *config.LedgerConfig) (*Ledger, error) {
	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	l, err := Open(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	if cfg != nil && cfg.VerifyOnLoad {
		if err := l.Verify(); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}
