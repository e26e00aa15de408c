package qos

import (
	"context"
	"sync"
	"sync/atomic"
)

// AdaptiveLimiter 基于 AIMD (Additive Increase Multiplicative Decrease) 的并发闸门
// - 成功时：每累计 currentLimit 次成功，并发额度 +1
// - 失败时：并发额度 ×0.7
//
// 令牌总数（空闲 + 借出）永远不超过 maxLimit，扫描器以 maxLimit 作为硬上限。
type AdaptiveLimiter struct {
	sem             chan struct{} // 空闲令牌
	reductionNeeded int32         // 待销毁的借出令牌数

	currentLimit int
	minLimit     int
	maxLimit     int
	successCount int
	mu           sync.Mutex
}

// NewAdaptiveLimiter 创建自适应限流器
// initial: 初始并发数，min/max: 上下限
func NewAdaptiveLimiter(initial, min, max int) *AdaptiveLimiter {
	if max < 1 {
		max = 1
	}
	if min < 1 {
		min = 1
	}
	if min > max {
		min = max
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}

	l := &AdaptiveLimiter{
		sem:          make(chan struct{}, max), // 通道容量即硬上限
		currentLimit: initial,
		minLimit:     min,
		maxLimit:     max,
	}
	for i := 0; i < initial; i++ {
		l.sem <- struct{}{}
	}
	return l
}

// NewFixedLimiter 固定并发数，OnSuccess/OnFailure 不改变额度
func NewFixedLimiter(n int) *AdaptiveLimiter {
	return NewAdaptiveLimiter(n, n, n)
}

// Acquire 获取一个令牌，阻塞直到有令牌或 ctx 取消
func (l *AdaptiveLimiter) Acquire(ctx context.Context) error {
	// ctx 已取消时不再发放令牌
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 归还令牌；有待销毁额度时直接销毁
func (l *AdaptiveLimiter) Release() {
	for {
		debt := atomic.LoadInt32(&l.reductionNeeded)
		if debt <= 0 {
			break
		}
		if atomic.CompareAndSwapInt32(&l.reductionNeeded, debt, debt-1) {
			return
		}
	}

	select {
	case l.sem <- struct{}{}:
	default:
		// Release 次数多于 Acquire
	}
}

// OnSuccess 通知一次成功的操作
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successCount++
	if l.successCount >= l.currentLimit {
		l.successCount = 0
		l.increaseLimit(1)
	}
}

// OnFailure 通知一次拥塞类失败（超时）
func (l *AdaptiveLimiter) OnFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	newLimit := int(float64(l.currentLimit) * 0.7)
	decrease := l.currentLimit - newLimit
	if decrease < 1 {
		decrease = 1
	}
	l.decreaseLimit(decrease)
	l.successCount = 0
}

// increaseLimit 增加额度，优先抵消待销毁令牌
func (l *AdaptiveLimiter) increaseLimit(n int) {
	target := min(l.currentLimit+n, l.maxLimit)
	diff := target - l.currentLimit
	if diff <= 0 {
		return
	}
	l.currentLimit = target

	for i := 0; i < diff; i++ {
		if l.cancelDebt() {
			continue
		}
		select {
		case l.sem <- struct{}{}:
		default:
		}
	}
}

// cancelDebt 抵消一个待销毁令牌
func (l *AdaptiveLimiter) cancelDebt() bool {
	for {
		debt := atomic.LoadInt32(&l.reductionNeeded)
		if debt <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.reductionNeeded, debt, debt-1) {
			return true
		}
	}
}

// decreaseLimit 减少额度：先收回空闲令牌，不够的记为待销毁
func (l *AdaptiveLimiter) decreaseLimit(n int) {
	target := max(l.currentLimit-n, l.minLimit)
	diff := l.currentLimit - target
	if diff <= 0 {
		return
	}
	l.currentLimit = target

	removed := 0
	for i := 0; i < diff; i++ {
		select {
		case <-l.sem:
			removed++
		default:
		}
	}
	if remaining := diff - removed; remaining > 0 {
		atomic.AddInt32(&l.reductionNeeded, int32(remaining))
	}
}

// CurrentLimit 当前并发额度
func (l *AdaptiveLimiter) CurrentLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLimit
}
