package options

import (
	"fmt"
	"time"

	"reconledger/internal/core/portspec"
	"reconledger/internal/core/scanner/port"
)

// PortScanOptions 端口扫描命令行参数，零值表示沿用配置文件
type PortScanOptions struct {
	Target        string
	Port          string
	Profile       string // 命名端口配置档，优先于 Port
	Template      string // 扫描模板，给出时忽略其余目标/端口参数
	Concurrency   int
	Timeout       time.Duration
	BannerTimeout time.Duration
	Strict        bool
	Active        bool
	Advisory      bool
	Adaptive      bool
	Stream        bool // 逐端口输出进度
	ReverseDNS    bool // 输出目标的 PTR 记录
	Output        OutputOptions
}

func NewPortScanOptions() *PortScanOptions {
	return &PortScanOptions{
		Port: portspec.KeywordAll,
	}
}

func (o *PortScanOptions) Validate() error {
	if o.Template != "" {
		return nil
	}
	if o.Target == "" {
		return fmt.Errorf("target is required")
	}
	if o.Concurrency < 0 || o.Concurrency > port.MaxConcurrency {
		return fmt.Errorf("concurrency must be within [1,%d]", port.MaxConcurrency)
	}
	if o.Timeout < 0 || o.BannerTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// ApplyTo 把命令行参数叠加到配置给出的默认选项上
func (o *PortScanOptions) ApplyTo(base port.Options) port.Options {
	if o.Concurrency > 0 {
		base.ConcurrencyLimit = o.Concurrency
	}
	if o.Timeout > 0 {
		base.ConnectTimeout = o.Timeout
	}
	if o.BannerTimeout > 0 {
		base.BannerTimeout = o.BannerTimeout
	}
	base.StrictPortSpec = base.StrictPortSpec || o.Strict
	base.ActiveProbe = base.ActiveProbe || o.Active
	base.Advisory = base.Advisory || o.Advisory
	base.Adaptive = base.Adaptive || o.Adaptive
	return base
}
