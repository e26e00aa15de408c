package model

import (
	"strconv"
	"time"
)

// PortState 端口最终状态
type PortState string

const (
	PortStateOpen    PortState = "open"
	PortStateClosed  PortState = "closed"
	PortStateTimeout PortState = "timeout"
)

// 端口关闭原因
const (
	ReasonRefused     = "refused"
	ReasonTimeout     = "timeout"
	ReasonUnreachable = "unreachable"
	ReasonReset       = "reset"
	ReasonCancelled   = "cancelled" // 取消时尚未派发
	ReasonAbandoned   = "abandoned" // 取消后宽限期内未完成
	ReasonError       = "error"
)

// Unknown 指纹无法识别时的占位值
const Unknown = "Unknown"

// ProbeResult 单端口探测结果
// 端口关闭时 Banner/RawBanner/Service/Version/OS/Advisory 均为空
type ProbeResult struct {
	Port      int           `json:"port"`
	Open      bool          `json:"open"`
	State     PortState     `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	TimedOut  bool          `json:"timed_out"`
	Banner    string        `json:"banner,omitempty"`     // 展示用，非法 UTF-8 替换为 U+FFFD
	RawBanner []byte        `json:"raw_banner,omitempty"` // 原始字节，JSON 中为 base64
	Service   string        `json:"service,omitempty"`
	Version   string        `json:"version,omitempty"`
	OS        string        `json:"os,omitempty"`
	Advisory  string        `json:"advisory,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// ClosedResult 构造关闭状态结果
func ClosedResult(port int, reason string) ProbeResult {
	r := ProbeResult{Port: port, State: PortStateClosed, Reason: reason}
	if reason == ReasonTimeout || reason == ReasonAbandoned || reason == ReasonCancelled {
		r.State = PortStateTimeout
		r.TimedOut = true
	}
	return r
}

// Headers 实现 TabularData 接口
func (r ProbeResult) Headers() []string {
	return []string{"Port", "State", "Service", "Version", "OS", "Advisory", "Banner"}
}

// Rows 实现 TabularData 接口
func (r ProbeResult) Rows() [][]string {
	return [][]string{{
		strconv.Itoa(r.Port),
		string(r.State),
		r.Service,
		r.Version,
		r.OS,
		r.Advisory,
		truncate(r.Banner, 48),
	}}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
