/**
 * 哈希链账本
 * @author: sun977
 * @date: 2025.11.04
 * @description: 追加写、全局串行、可独立校验的账本；条目先持久化再成为链尾
 */
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"reconledger/internal/pkg/logger"
)

// maxAppendAttempts 链尾冲突时的最大尝试次数，每次冲突都意味着其他写入方已成功追加
const maxAppendAttempts = 16

// Ledger 哈希链账本
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	store   Store
	now     func() time.Time
}

// New 创建纯内存账本（已含创世条目）
func New() *Ledger {
	l, err := Open(context.Background(), NewMemoryStore())
	if err != nil {
		// MemoryStore 不会失败，创世条目的负载为 null
		panic(err)
	}
	return l
}

// Open 从存储加载账本；存储为空时创建并持久化创世条目
// 加载后不会自动校验，调用方可在追加前调用 Verify
func Open(ctx context.Context, store Store) (*Ledger, error) {
	if store == nil {
		store = NewMemoryStore()
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	l := &Ledger{
		entries: entries,
		store:   store,
		now:     time.Now,
	}

	if len(l.entries) == 0 {
		genesis, err := newEntry(1, nil, GenesisPreviousHash, l.now())
		if err != nil {
			return nil, err
		}
		switch err := store.Append(ctx, genesis); {
		case err == nil:
			l.entries = append(l.entries, genesis)
			logger.LogLedgerOperation("genesis", genesis.Index, genesis.Hash, "success", nil)
		case errors.Is(err, ErrStaleTail):
			// 其他进程已抢先写入创世条目
			if l.entries, err = store.Load(ctx); err != nil {
				return nil, fmt.Errorf("load ledger: %w", err)
			}
			if len(l.entries) == 0 {
				return nil, fmt.Errorf("persist genesis: store still empty after %v", ErrStaleTail)
			}
		default:
			return nil, fmt.Errorf("persist genesis: %w", err)
		}
	}

	return l, nil
}

// Append 追加一条记录，返回封存后的条目副本
func (l *Ledger) Append(ctx context.Context, payload interface{}) (Entry, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 1; ; attempt++ {
		tail := l.entries[len(l.entries)-1]
		entry, err := newEntry(tail.Index+1, canonical, tail.Hash, l.now())
		if err != nil {
			return Entry{}, err
		}

		err = l.store.Append(ctx, entry)
		if err == nil {
			l.entries = append(l.entries, entry)
			logger.LogLedgerOperation("append", entry.Index, entry.Hash, "success", map[string]interface{}{
				"payload_size": len(canonical),
				"attempt":      attempt,
			})
			return entry.clone(), nil
		}

		logger.LogLedgerOperation("append", entry.Index, entry.Hash, "failed", map[string]interface{}{
			"error":   err.Error(),
			"attempt": attempt,
		})
		if !errors.Is(err, ErrStaleTail) || attempt >= maxAppendAttempts {
			return Entry{}, fmt.Errorf("persist entry %d: %w", entry.Index, err)
		}
		// 链尾被其他写入方推进，重新加载并校验后基于新链尾重试
		if err := l.reloadLocked(ctx); err != nil {
			return Entry{}, err
		}
	}
}

// reloadLocked 从存储重新加载条目，调用方持有写锁；校验不通过时保留原有条目
func (l *Ledger) reloadLocked(ctx context.Context) error {
	entries, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	if err := verifyEntries(entries); err != nil {
		return fmt.Errorf("reload ledger: %w", err)
	}
	logger.LogLedgerOperation("reload", entries[len(entries)-1].Index, entries[len(entries)-1].Hash, "success", map[string]interface{}{
		"previous_len": len(l.entries),
	})
	l.entries = entries
	return nil
}

// Verify 重新计算每个条目的哈希并检查链接关系，返回第一个不一致的位置
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := verifyEntries(l.entries); err != nil {
		var index int
		if ie, ok := err.(*IntegrityError); ok {
			index = ie.Index
		}
		logger.LogLedgerOperation("verify", index, "", "failed", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// Entries 返回条目快照
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Entry 按索引（从 1 开始）取条目
func (l *Ledger) Entry(index int) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < 1 || index > len(l.entries) {
		return Entry{}, false
	}
	return l.entries[index-1].clone(), true
}

// Tail 返回链尾条目
func (l *Ledger) Tail() Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].clone()
}

// Len 条目数（含创世条目）
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close 关闭底层存储
func (l *Ledger) Close() error {
	return l.store.Close()
}

// VerifyEntries 校验一组独立加载的条目
func VerifyEntries(entries []Entry) error {
	return verifyEntries(entries)
}

func verifyEntries(entries []Entry) error {
	if len(entries) == 0 {
		return &IntegrityError{Index: 0, Reason: "missing genesis entry"}
	}

	prev := GenesisPreviousHash
	for i, e := range entries {
		if e.Index != i+1 {
			return &IntegrityError{Index: i + 1, Reason: fmt.Sprintf("index out of sequence: got %d", e.Index)}
		}
		if e.PreviousHash != prev {
			return &IntegrityError{Index: e.Index, Reason: "previous hash does not match predecessor"}
		}
		payload := e.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		hash, err := ComputeHash(e.Index, payload, e.PreviousHash)
		if err != nil {
			return &IntegrityError{Index: e.Index, Reason: "payload is not valid JSON"}
		}
		if hash != e.Hash {
			return &IntegrityError{Index: e.Index, Reason: "hash mismatch"}
		}
		prev = e.Hash
	}
	return nil
}
