package qos

import (
	"sync"
	"time"
)

const (
	defaultInitialRTO = 1 * time.Second
	minRTO            = 100 * time.Millisecond
	maxRTO            = 10 * time.Second
	alpha             = 0.125 // RFC 6298
	beta              = 0.25  // RFC 6298
)

// RttEstimator RFC 6298 RTO 估算
// 扫描器用它把连接超时收敛到目标网络的实际往返时间
type RttEstimator struct {
	srtt   time.Duration
	rttvar time.Duration
	rto    time.Duration
	mu     sync.RWMutex
}

// NewRttEstimator 创建 RTT 估算器，初始 RTO 为 1s
func NewRttEstimator() *RttEstimator {
	return &RttEstimator{
		rto: defaultInitialRTO,
	}
}

// Update 用一次成功连接的耗时更新估算
func (e *RttEstimator) Update(rtt time.Duration) {
	if rtt <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.srtt == 0 {
		e.srtt = rtt
		e.rttvar = rtt / 2
	} else {
		delta := e.srtt - rtt
		if delta < 0 {
			delta = -delta
		}
		e.rttvar = time.Duration((1-beta)*float64(e.rttvar) + beta*float64(delta))
		e.srtt = time.Duration((1-alpha)*float64(e.srtt) + alpha*float64(rtt))
	}

	// RTO = SRTT + 4*RTTVAR，忽略时钟粒度 G
	e.rto = min(max(e.srtt+4*e.rttvar, minRTO), maxRTO)
}

// Timeout 当前建议的超时时间
func (e *RttEstimator) Timeout() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rto
}

// Bound 返回 min(ceiling, RTO)，ceiling<=0 时直接返回 RTO
func (e *RttEstimator) Bound(ceiling time.Duration) time.Duration {
	rto := e.Timeout()
	if ceiling > 0 && ceiling < rto {
		return ceiling
	}
	return rto
}
