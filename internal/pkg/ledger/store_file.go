package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockSuffix     = ".lock"
	lockRetryDelay = 20 * time.Millisecond
	tailChunkSize  = 4096
)

// FileStore JSON Lines 文件存储，每行一个条目，追加写后立即 fsync
// 读写都持有 <path>.lock 文件锁，多个进程可共享同一账本文件
type FileStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	lock *flock.Flock
}

// NewFileStore 打开（必要时创建）账本文件
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger file path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	return &FileStore{path: path, file: f, lock: flock.New(path + lockSuffix)}, nil
}

// acquire 获取文件锁，shared 为 true 时取共享锁
func (s *FileStore) acquire(ctx context.Context, shared bool) error {
	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("lock ledger file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock ledger file: %s is busy", s.lock.Path())
	}
	return nil
}

// Path 文件路径
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, true); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	// 整份扫描报告可能很大，不使用 bufio.Scanner 的行长上限
	reader := bufio.NewReader(f)
	var entries []Entry
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("read ledger file: %w", readErr)
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("ledger file line %d: %w", lineNo, err)
			}
			entries = append(entries, e)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
	}
	return entries, nil
}

func (s *FileStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer s.lock.Unlock()

	tail, err := s.readTail()
	if err != nil {
		return err
	}
	if err := checkTail(tail, entry); err != nil {
		return err
	}

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write ledger file: %w", err)
	}
	return s.file.Sync()
}

// readTail 从文件末尾反向读取最后一个条目，空文件返回 nil
func (s *FileStore) readTail() (*Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat ledger file: %w", err)
	}

	var (
		line []byte
		buf  = make([]byte, tailChunkSize)
	)
	for pos := info.Size(); pos > 0; {
		n := min(int64(len(buf)), pos)
		pos -= n
		if _, err := f.ReadAt(buf[:n], pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read ledger file: %w", err)
		}
		line = append(append([]byte(nil), buf[:n]...), line...)

		trimmed := bytes.TrimRight(line, " \t\r\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			line = trimmed[i+1:]
			break
		}
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, fmt.Errorf("ledger file tail: %w", err)
	}
	return &e, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
