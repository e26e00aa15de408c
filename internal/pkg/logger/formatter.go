// 结构化日志
package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NowFormatted 当前时间，格式同日志时间戳
func NowFormatted() string {
	return time.Now().Format(TimestampFormat)
}

// LogType 日志类型枚举
type LogType string

const (
	// AccessLog 访问日志 - HTTP API 请求
	AccessLog LogType = "access"
	// SystemLog 系统日志 - 组件启动、关闭、配置变化
	SystemLog LogType = "system"
	// ScanLog 扫描日志 - 扫描任务生命周期
	ScanLog LogType = "scan"
	// AuditLog 审计日志 - 账本追加与校验
	AuditLog LogType = "audit"
	// SecurityLog 安全日志 - 扫描中发现的风险服务
	SecurityLog LogType = "security"
)

// LogLevel 日志级别类型，封装logrus.Level避免业务层直接依赖logrus
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// toLogrusLevel 将封装的LogLevel转换为logrus.Level
func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// mergeFields 合并额外字段
func mergeFields(fields logrus.Fields, extra map[string]interface{}) logrus.Fields {
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// LogAccessRequest 记录HTTP访问日志
func LogAccessRequest(c *gin.Context, startTime time.Time) {
	if LoggerInstance == nil {
		return
	}

	LoggerInstance.logger.WithFields(logrus.Fields{
		"type":          AccessLog,
		"method":        c.Request.Method,
		"path":          c.Request.URL.Path,
		"query":         c.Request.URL.RawQuery,
		"status_code":   c.Writer.Status(),
		"response_time": time.Since(startTime).Milliseconds(),
		"client_ip":     c.ClientIP(),
		"user_agent":    c.Request.UserAgent(),
		"response_size": c.Writer.Size(),
	}).Info("HTTP request processed")
}

// LogSystemEvent 记录系统事件日志
// component: 组件名（ledger, config, server...），event: 事件类型（startup, reload, error...）
func LogSystemEvent(component, event, message string, level LogLevel, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	logrusLevel := toLogrusLevel(level)
	fields := mergeFields(logrus.Fields{
		"type":      SystemLog,
		"component": component,
		"event":     event,
		"detail":    message,
	}, extraFields)

	LoggerInstance.logger.WithFields(fields).Log(logrusLevel, fmt.Sprintf("System event: %s - %s", component, event))
}

// LogScanOperation 记录扫描操作日志
// status: running/completed/failed/cancelled，progress 为 0-100
func LogScanOperation(scanID, scanType, target, status string, progress int, result string, duration int64, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":      ScanLog,
		"scan_id":   scanID,
		"scan_type": scanType,
		"target":    target,
		"status":    status,
		"progress":  progress,
		"result":    result,
		"duration":  duration,
	}, extraFields)

	entry := LoggerInstance.logger.WithFields(fields)
	switch status {
	case "completed":
		entry.Info(fmt.Sprintf("Scan completed: %s on %s", scanType, target))
	case "failed":
		entry.Error(fmt.Sprintf("Scan failed: %s on %s", scanType, target))
	case "running":
		entry.Debug(fmt.Sprintf("Scan running: %s on %s (%d%%)", scanType, target, progress))
	default:
		entry.Info(fmt.Sprintf("Scan %s: %s on %s", status, scanType, target))
	}
}

// LogLedgerOperation 记录账本审计日志
func LogLedgerOperation(action string, index int, hash, result string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":   AuditLog,
		"action": action,
		"index":  index,
		"hash":   hash,
		"result": result,
	}, extraFields)

	entry := LoggerInstance.logger.WithFields(fields)
	if result == "success" {
		entry.Info(fmt.Sprintf("Ledger %s", action))
	} else {
		entry.Warn(fmt.Sprintf("Ledger %s failed", action))
	}
}

// LogSecurityEvent 记录安全事件日志
// severity: low/medium/high
func LogSecurityEvent(eventType, severity, target, detail string, extraFields map[string]interface{}) {
	if LoggerInstance == nil {
		return
	}

	fields := mergeFields(logrus.Fields{
		"type":       SecurityLog,
		"event_type": eventType,
		"severity":   severity,
		"target":     target,
		"detail":     detail,
	}, extraFields)

	entry := LoggerInstance.logger.WithFields(fields)
	switch severity {
	case "high":
		entry.Error(fmt.Sprintf("High security event: %s", eventType))
	case "medium":
		entry.Warn(fmt.Sprintf("Medium security event: %s", eventType))
	default:
		entry.Info(fmt.Sprintf("Security event: %s", eventType))
	}
}
