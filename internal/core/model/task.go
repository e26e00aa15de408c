/**
 * 任务模型定义
 * @author: Sun977
 * @date: 2026.01.21
 * @description: API 异步扫描任务，CLI 同步执行时不经过任务表
 */

package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskType 任务类型
type TaskType string

const (
	TaskTypePortScan    TaskType = "port_scan"
	TaskTypeCertificate TaskType = "certificate"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task 异步任务
type Task struct {
	ID          string      `json:"scan_id"`
	Type        TaskType    `json:"type"`
	Target      string      `json:"target"`
	PortSpec    string      `json:"ports,omitempty"`
	Status      TaskStatus  `json:"status"`
	Result      *ScanReport `json:"result,omitempty"`
	LedgerIndex int         `json:"ledger_index,omitempty"` // 结果写入账本后的序号
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewScanID 生成扫描编号
// 仅用于展示和查询，不具备任何安全属性
func NewScanID() string {
	return uuid.NewString()
}

// NewTask 创建一个待执行任务
func NewTask(taskType TaskType, target, portSpec string) *Task {
	now := time.Now()
	return &Task{
		ID:        NewScanID(),
		Type:      taskType,
		Target:    target,
		PortSpec:  portSpec,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
