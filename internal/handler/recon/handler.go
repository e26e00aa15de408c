/**
 * 侦察 API 处理器
 * @author: sun977
 * @date: 2025.11.16
 * @description: 扫描提交/查询、证书检查、单端口指纹、账本查看与校验
 */
package recon

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"reconledger/internal/core/model"
	"reconledger/internal/core/portspec"
	"reconledger/internal/core/target"
	"reconledger/internal/pkg/ledger"
	"reconledger/internal/pkg/logger"
	"reconledger/internal/pkg/monitor"
	"reconledger/internal/pkg/profile"
	"reconledger/internal/pkg/version"
	reconService "reconledger/internal/service/recon"
	"reconledger/internal/service/task"
)

// 账本查询默认/最大条数
const (
	defaultLedgerLimit = 100
	maxLedgerLimit     = 1000
)

// Handler 侦察 API 处理器
type Handler struct {
	service *reconService.Service
	tasks   *task.Manager
}

// NewHandler 创建处理器
func NewHandler(service *reconService.Service, tasks *task.Manager) *Handler {
	return &Handler{service: service, tasks: tasks}
}

// ScanRequest 扫描请求体，未给出的选项使用服务默认值
type ScanRequest struct {
	Target      string `json:"target" binding:"required"`
	Ports       string `json:"ports"`
	Profile     string `json:"profile"`
	Concurrency int    `json:"concurrency"`
	Strict      *bool  `json:"strict"`
	ActiveProbe *bool  `json:"active_probe"`
	Advisory    *bool  `json:"advisory"`
	Adaptive    *bool  `json:"adaptive"`
}

// CertificateRequest 证书检查请求体
type CertificateRequest struct {
	Hostname string `json:"hostname" binding:"required"`
	Port     int    `json:"port"`
}

// FingerprintRequest 单端口指纹请求体
type FingerprintRequest struct {
	Target string `json:"target" binding:"required"`
	Port   int    `json:"port" binding:"required"`
	Active bool   `json:"active"`
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      logger.NowFormatted(),
		"ledger_entries": h.service.Ledger().Len(),
	})
}

// Ping 存活检查
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": logger.NowFormatted(),
	})
}

// Version 版本信息
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     version.GetVersion(),
		"api_version": version.APIVersion,
		"build_time":  version.BuildTime,
		"git_commit":  version.GitCommit,
		"go_version":  version.GoVersion,
	})
}

// Status 主机指标与服务状态
func (h *Handler) Status(c *gin.Context) {
	snapshot := monitor.Collect(c.Request.Context())
	l := h.service.Ledger()
	c.JSON(http.StatusOK, model.Success(http.StatusOK, "ok", gin.H{
		"metrics": snapshot,
		"ledger": gin.H{
			"entries":   l.Len(),
			"tail_hash": l.Tail().Hash,
		},
		"tasks": len(h.tasks.List()),
	}))
}

// SubmitScan 提交异步扫描任务，立即返回 scan_id
func (h *Handler) SubmitScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid request body", err))
		return
	}

	// 目标与端口表达式先同步校验，明显错误不进入任务表
	if _, err := target.Validate(req.Target); err != nil {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid target", err))
		return
	}
	spec, err := h.service.ResolvePortSpec(req.Ports, req.Profile)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, model.Failure(status, "failed to resolve port profile", err))
		return
	}

	opts := h.service.Options()
	if req.Concurrency > 0 {
		opts.ConcurrencyLimit = req.Concurrency
	}
	overrideBool(&opts.StrictPortSpec, req.Strict)
	overrideBool(&opts.ActiveProbe, req.ActiveProbe)
	overrideBool(&opts.Advisory, req.Advisory)
	overrideBool(&opts.Adaptive, req.Adaptive)

	if opts.StrictPortSpec && !strings.EqualFold(strings.TrimSpace(spec), portspec.KeywordPredict) {
		if _, err := portspec.ExpandWithOptions(spec, portspec.Options{Strict: true}); err != nil {
			c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid port spec", err))
			return
		}
	}

	t, err := h.tasks.Submit(task.ScanRequest{Target: req.Target, Ports: spec, Options: opts})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, model.Failure(http.StatusServiceUnavailable, "scan not accepted", err))
		return
	}
	c.JSON(http.StatusAccepted, model.Success(http.StatusAccepted, "scan accepted", t))
}

// GetScan 查询扫描任务
func (h *Handler) GetScan(c *gin.Context) {
	t, err := h.tasks.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, model.Failure(http.StatusNotFound, "scan not found", err))
		return
	}
	c.JSON(http.StatusOK, model.Success(http.StatusOK, string(t.Status), t))
}

// ListScans 列出扫描任务（不含结果）
func (h *Handler) ListScans(c *gin.Context) {
	c.JSON(http.StatusOK, model.Success(http.StatusOK, "ok", h.tasks.List()))
}

// Certificate 同步检查证书，结果写入账本
func (h *Handler) Certificate(c *gin.Context) {
	var req CertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid request body", err))
		return
	}
	if req.Port < 0 || req.Port > portspec.MaxPort {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid port", nil))
		return
	}

	out, err := h.service.ValidateCertificate(c.Request.Context(), req.Hostname, req.Port)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Failure(http.StatusInternalServerError, "certificate check failed", err))
		return
	}
	c.JSON(http.StatusOK, model.Success(http.StatusOK, "ok", out))
}

// Fingerprint 单端口指纹识别，不记账
func (h *Handler) Fingerprint(c *gin.Context) {
	var req FingerprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid request body", err))
		return
	}

	res, err := h.service.Fingerprint(c.Request.Context(), req.Target, req.Port, req.Active)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "fingerprint failed", err))
		return
	}
	c.JSON(http.StatusOK, model.Success(http.StatusOK, "ok", res))
}

// GetLedger 返回账本最后 limit 条记录
func (h *Handler) GetLedger(c *gin.Context) {
	limit := defaultLedgerLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid limit", nil))
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	entries := h.service.Ledger().Entries()
	total := len(entries)
	if total > limit {
		entries = entries[total-limit:]
	}
	c.JSON(http.StatusOK, model.Success(http.StatusOK, "ok", gin.H{
		"total":   total,
		"entries": entries,
	}))
}

// GetLedgerEntry 按索引返回单个条目
func (h *Handler) GetLedgerEntry(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Failure(http.StatusBadRequest, "invalid index", nil))
		return
	}
	entry, ok := h.service.Ledger().Entry(index)
	if !ok {
		c.JSON(http.StatusNotFound, model.Failure(http.StatusNotFound, "ledger entry not found", nil))
		return
	}
	c.JSON(http.StatusOK, model.Success(http.StatusOK, "ok", entry))
}

// VerifyLedger 校验账本完整性，校验失败时 valid 为 false 并给出断点
func (h *Handler) VerifyLedger(c *gin.Context) {
	l := h.service.Ledger()
	err := h.service.VerifyLedger()
	if err == nil {
		c.JSON(http.StatusOK, model.Success(http.StatusOK, "ledger is valid", gin.H{
			"valid":   true,
			"entries": l.Len(),
		}))
		return
	}

	data := gin.H{"valid": false, "entries": l.Len(), "reason": err.Error()}
	var ie *ledger.IntegrityError
	if errors.As(err, &ie) {
		data["index"] = ie.Index
	}
	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Status:  "failed",
		Message: "ledger integrity check failed",
		Data:    data,
	})
}

func overrideBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
