// Package monitor 采集本机与进程指标，用于 /api/v1/status
// 扫描并发受文件描述符约束，进程的 fd 数量一并上报
package monitor

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"reconledger/internal/pkg/logger"
)

const cpuSampleInterval = 100 * time.Millisecond

// HostInfo 主机静态信息
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Arch            string `json:"arch"`
	CPUCores        int    `json:"cpu_cores"`
	MemoryTotal     uint64 `json:"memory_total"`
}

// SystemMetrics 系统负载
type SystemMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	Uptime      uint64  `json:"uptime"`
}

// ProcessMetrics 当前进程资源占用
type ProcessMetrics struct {
	PID        int32   `json:"pid"`
	Goroutines int     `json:"goroutines"`
	Threads    int32   `json:"threads"`
	OpenFDs    int32   `json:"open_fds"`
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Snapshot 一次完整采集
type Snapshot struct {
	Host      *HostInfo       `json:"host"`
	System    *SystemMetrics  `json:"system"`
	Process   *ProcessMetrics `json:"process"`
	Timestamp time.Time       `json:"timestamp"`
}

// Collect 采集全部指标，单项失败只记日志，对应字段保持零值
func Collect(ctx context.Context) *Snapshot {
	return &Snapshot{
		Host:      GetHostInfo(ctx),
		System:    GetSystemMetrics(ctx),
		Process:   GetProcessMetrics(ctx),
		Timestamp: time.Now(),
	}
}

// GetSystemMetrics 获取系统负载
func GetSystemMetrics(ctx context.Context) *SystemMetrics {
	metrics := &SystemMetrics{}

	cpuPercent, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		warn("GetSystemMetrics", "Failed to get CPU usage: "+err.Error())
	} else if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}

	vMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		warn("GetSystemMetrics", "Failed to get Memory usage: "+err.Error())
	} else {
		metrics.MemoryUsage = vMem.UsedPercent
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		warn("GetSystemMetrics", "Failed to get uptime: "+err.Error())
	} else {
		metrics.Uptime = uptime
	}
	return metrics
}

// GetHostInfo 获取主机静态信息
func GetHostInfo(ctx context.Context) *HostInfo {
	info := &HostInfo{}

	hInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		warn("GetHostInfo", "Failed to get host info: "+err.Error())
	} else {
		info.Hostname = hInfo.Hostname
		info.OS = hInfo.OS
		info.Platform = hInfo.Platform
		info.PlatformVersion = hInfo.PlatformVersion
		info.KernelVersion = hInfo.KernelVersion
		info.Arch = hInfo.KernelArch
	}
	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	if info.Arch == "" {
		info.Arch = runtime.GOARCH
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores == 0 {
		cores = runtime.NumCPU()
	}
	info.CPUCores = cores

	vMem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		warn("GetHostInfo", "Failed to get Memory info: "+err.Error())
	} else {
		info.MemoryTotal = vMem.Total
	}
	return info
}

// GetProcessMetrics 获取当前进程资源占用
func GetProcessMetrics(ctx context.Context) *ProcessMetrics {
	metrics := &ProcessMetrics{
		PID:        int32(os.Getpid()),
		Goroutines: runtime.NumGoroutine(),
	}

	p, err := process.NewProcessWithContext(ctx, metrics.PID)
	if err != nil {
		warn("GetProcessMetrics", "Failed to open process: "+err.Error())
		return metrics
	}

	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		metrics.Threads = n
	}
	// Windows 不支持 fd 计数
	if n, err := p.NumFDsWithContext(ctx); err == nil {
		metrics.OpenFDs = n
	}
	if m, err := p.MemoryInfoWithContext(ctx); err == nil && m != nil {
		metrics.RSS = m.RSS
	}
	if c, err := p.CPUPercentWithContext(ctx); err == nil {
		metrics.CPUPercent = c
	}
	return metrics
}

func warn(event, message string) {
	logger.LogSystemEvent("Monitor", event, message, logger.WarnLevel, nil)
}
