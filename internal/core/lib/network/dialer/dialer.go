package dialer

import (
	"context"
	"net"
	"strings"
	"time"
)

// Dialer 定义了网络连接器接口
// 扫描器与证书校验器通过构造函数注入，不使用全局实例
type Dialer interface {
	// DialContext 建立连接
	// network: 协议 (tcp, udp)
	// address: 目标地址 (ip:port)
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer 默认直连拨号器
type DefaultDialer struct {
	Timeout time.Duration
}

func NewDefaultDialer(timeout time.Duration) *DefaultDialer {
	return &DefaultDialer{
		Timeout: timeout,
	}
}

func (d *DefaultDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: d.Timeout,
	}
	return dialer.DialContext(ctx, network, address)
}

// New 按代理配置创建拨号器，proxyURL 为空时直连
func New(proxyURL string, timeout time.Duration) (Dialer, error) {
	if strings.TrimSpace(proxyURL) == "" {
		return NewDefaultDialer(timeout), nil
	}
	pd, err := NewProxyDialer(proxyURL, timeout)
	if err != nil {
		return nil, err
	}
	return pd, nil
}
