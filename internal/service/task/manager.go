/**
 * 异步任务管理
 * @author: sun977
 * @date: 2025.11.15
 * @description: API 提交的扫描在后台执行，任务表常驻内存，进程重启后只保留账本中的结果
 */
package task

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"reconledger/internal/core/model"
	"reconledger/internal/core/scanner/port"
	"reconledger/internal/pkg/logger"
	"reconledger/internal/service/recon"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("task not found")

// ErrShuttingDown 管理器已停止接收任务
var ErrShuttingDown = errors.New("task manager is shutting down")

// ScanRunner 执行扫描并记账，recon.Service 实现了该接口
type ScanRunner interface {
	RunScan(ctx context.Context, input, spec string, opts port.Options, sink port.Sink) (*recon.ScanOutcome, error)
}

// ScanRequest 扫描请求
type ScanRequest struct {
	Target  string
	Ports   string
	Options port.Options
}

// 已结束任务的默认保留策略
const (
	DefaultTaskTTL  = time.Hour
	DefaultMaxTasks = 1000
)

// Option 管理器选项
type Option func(*Manager)

// WithRetention 设置已结束任务的保留时长与数量上限，非正值使用默认值
func WithRetention(ttl time.Duration, maxFinished int) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
		if maxFinished > 0 {
			m.maxFinished = maxFinished
		}
	}
}

// Manager 内存任务表
// 运行中的任务始终保留；已结束的任务超过 ttl 或超出 maxFinished 后被淘汰
type Manager struct {
	runner ScanRunner

	mu          sync.RWMutex
	tasks       map[string]*model.Task
	ttl         time.Duration
	maxFinished int
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewManager 创建任务管理器
func NewManager(runner ScanRunner, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner:      runner,
		tasks:       make(map[string]*model.Task),
		ttl:         DefaultTaskTTL,
		maxFinished: DefaultMaxTasks,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit 登记任务并在后台执行，立即返回任务快照
func (m *Manager) Submit(req ScanRequest) (*model.Task, error) {
	t := model.NewTask(model.TaskTypePortScan, req.Target, req.Ports)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.pruneLocked()
	m.tasks[t.ID] = t
	m.wg.Add(1)
	snapshot := *t
	m.mu.Unlock()

	req.Options.ScanID = t.ID
	go m.run(t.ID, req)
	return &snapshot, nil
}

func (m *Manager) run(id string, req ScanRequest) {
	defer m.wg.Done()
	m.update(id, func(t *model.Task) { t.Status = model.TaskStatusRunning })

	out, err := m.runner.RunScan(m.ctx, req.Target, req.Ports, req.Options, nil)
	if err != nil {
		logger.Warnf("task %s failed: %v", id, err)
		m.update(id, func(t *model.Task) {
			t.Status = model.TaskStatusFailed
			t.Error = err.Error()
		})
		return
	}

	m.update(id, func(t *model.Task) {
		t.Status = model.TaskStatusCompleted
		t.Result = out.Report
		t.LedgerIndex = out.Entry.Index
	})
}

func (m *Manager) update(id string, fn func(*model.Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return
	}
	fn(t)
	t.UpdatedAt = m.now()
	if finished(t) {
		m.pruneLocked()
	}
}

func finished(t *model.Task) bool {
	return t.Status == model.TaskStatusCompleted || t.Status == model.TaskStatusFailed
}

// pruneLocked 淘汰过期的已结束任务，再按结束时间淘汰超出上限的部分，调用方持有写锁
func (m *Manager) pruneLocked() {
	now := m.now()
	var done []*model.Task
	for id, t := range m.tasks {
		if !finished(t) {
			continue
		}
		if now.Sub(t.UpdatedAt) > m.ttl {
			delete(m.tasks, id)
			continue
		}
		done = append(done, t)
	}
	if len(done) <= m.maxFinished {
		return
	}

	sort.Slice(done, func(i, j int) bool { return done[i].UpdatedAt.Before(done[j].UpdatedAt) })
	for _, t := range done[:len(done)-m.maxFinished] {
		delete(m.tasks, t.ID)
	}
	logger.Debugf("task manager: evicted %d finished tasks", len(done)-m.maxFinished)
}

// Get 返回任务快照
func (m *Manager) Get(id string) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *t
	return &snapshot, nil
}

// List 按创建时间倒序列出任务（不含结果详情）
func (m *Manager) List() []*model.Task {
	m.mu.RLock()
	out := make([]*model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		snapshot := *t
		snapshot.Result = nil
		out = append(out, &snapshot)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Shutdown 停止接收新任务，取消在途扫描并等待其记账完成
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
