package model

import (
	"time"
)

// ScanReport 一次扫描的完整结果，构造完成后不再修改
type ScanReport struct {
	ID               string        `json:"scan_id"`
	Target           string        `json:"target"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	PortsScanned     int           `json:"ports_scanned"`
	OpenPorts        []int         `json:"open_ports"`
	Details          []ProbeResult `json:"details"` // 按端口升序
	PortSpecFallback bool          `json:"port_spec_fallback,omitempty"`
	Cancelled        bool          `json:"cancelled,omitempty"`
}

// Duration 扫描耗时
func (r *ScanReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// OpenDetails 只返回开放端口的结果
func (r *ScanReport) OpenDetails() []ProbeResult {
	out := make([]ProbeResult, 0, len(r.OpenPorts))
	for _, d := range r.Details {
		if d.Open {
			out = append(out, d)
		}
	}
	return out
}

// Headers 实现 TabularData 接口
func (r *ScanReport) Headers() []string {
	return ProbeResult{}.Headers()
}

// Rows 实现 TabularData 接口，只输出开放端口
func (r *ScanReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.OpenPorts))
	for _, d := range r.OpenDetails() {
		rows = append(rows, d.Rows()...)
	}
	return rows
}
