// Package probe 单端口 TCP 探测：连接、读取一次 Banner，可选发送 HEAD 主动探测
package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"reconledger/internal/core/lib/network/dialer"
	"reconledger/internal/core/model"
	"reconledger/internal/pkg/logger"
)

const (
	DefaultConnectTimeout = 1 * time.Second
	DefaultBannerTimeout  = 2 * time.Second

	bannerSize  = 1024
	headSize    = 4096
	headRequest = "HEAD / HTTP/1.0\r\n\r\n"
)

// State 探测状态机: Pending -> Connecting -> {Open, Closed, TimedOut}
type State int

const (
	StatePending State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Timeouts 探测超时
type Timeouts struct {
	Connect time.Duration
	Banner  time.Duration
}

// DefaultTimeouts 连接 1s，Banner 2s
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: DefaultConnectTimeout, Banner: DefaultBannerTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Banner <= 0 {
		t.Banner = DefaultBannerTimeout
	}
	return t
}

// Prober 端口探测器，可并发使用
type Prober struct {
	dialer   dialer.Dialer
	timeouts Timeouts
}

// NewProber 创建探测器
func NewProber(d dialer.Dialer, timeouts Timeouts) *Prober {
	timeouts = timeouts.withDefaults()
	if d == nil {
		d = dialer.NewDefaultDialer(timeouts.Connect)
	}
	return &Prober{dialer: d, timeouts: timeouts}
}

// Timeouts 返回当前超时设置
func (p *Prober) Timeouts() Timeouts {
	return p.timeouts
}

// Run 探测单个端口，失败信息体现在结果里，不返回 error
func (p *Prober) Run(ctx context.Context, target model.Target, port int) model.ProbeResult {
	return p.RunWithTimeout(ctx, target, port, p.timeouts.Connect)
}

// RunWithTimeout 使用指定连接超时探测，自适应模式下由扫描器传入 RTO
func (p *Prober) RunWithTimeout(ctx context.Context, target model.Target, port int, connectTimeout time.Duration) model.ProbeResult {
	if connectTimeout <= 0 {
		connectTimeout = p.timeouts.Connect
	}
	state := StateConnecting
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", target.HostPort(port))
	latency := time.Since(start)
	cancel()

	if err != nil {
		reason := classifyDialError(ctx, err)
		state = StateClosed
		if reason == model.ReasonTimeout {
			state = StateTimedOut
		}
		logger.Debugf("probe %s:%d %s -> %s (%s)", target.Address, port, StateConnecting, state, reason)
		r := model.ClosedResult(port, reason)
		r.Latency = latency
		return r
	}
	defer conn.Close()

	state = StateOpen
	raw := readBanner(conn, p.timeouts.Banner)
	logger.Debugf("probe %s:%d %s, banner %d bytes", target.Address, port, state, len(raw))

	return model.ProbeResult{
		Port:      port,
		Open:      true,
		State:     model.PortStateOpen,
		Banner:    DisplayBanner(raw),
		RawBanner: raw,
		Latency:   latency,
	}
}

// Head 发送 HEAD 请求并返回原始响应，任何失败返回 nil
func (p *Prober) Head(ctx context.Context, target model.Target, port int) []byte {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeouts.Connect)
	conn, err := p.dialer.DialContext(dialCtx, "tcp", target.HostPort(port))
	cancel()
	if err != nil {
		return nil
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeouts.Banner)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(headRequest)); err != nil {
		return nil
	}

	buf := make([]byte, 0, headSize)
	chunk := make([]byte, 1024)
	for len(buf) < headSize {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:min(n, headSize-len(buf))]...)
		if err != nil {
			break
		}
	}
	if len(buf) == 0 {
		return nil
	}
	return buf
}

// readBanner 单次读取原始字节，超时或无数据时返回 nil
func readBanner(conn net.Conn, timeout time.Duration) []byte {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, bannerSize)
	n, _ := conn.Read(buf)
	if n <= 0 {
		return nil
	}
	return buf[:n:n]
}

// DisplayBanner 渲染为可读文本，非法 UTF-8 字节替换为 U+FFFD
func DisplayBanner(raw []byte) string {
	return strings.ToValidUTF8(strings.TrimSpace(string(raw)), "\uFFFD")
}

// classifyDialError 把拨号错误归类为关闭原因
func classifyDialError(parent context.Context, err error) string {
	if parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return model.ReasonTimeout
		}
		return model.ReasonCancelled
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return model.ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return model.ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return model.ReasonRefused
	case errors.Is(err, syscall.ECONNRESET):
		return model.ReasonReset
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return model.ReasonUnreachable
	default:
		return model.ReasonError
	}
}
