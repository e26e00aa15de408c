/**
 * 侦察服务
 * @author: sun977
 * @date: 2025.11.14
 * @description: 组装扫描器、证书校验器、指纹引擎与账本，CLI 与 API 共用；每次扫描/证书检查的结果都写入账本
 */
package recon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reconledger/internal/config"
	"reconledger/internal/core/analysis"
	"reconledger/internal/core/lib/network/dialer"
	"reconledger/internal/core/model"
	"reconledger/internal/core/scanner/cert"
	"reconledger/internal/core/scanner/port"
	"reconledger/internal/core/scanner/probe"
	"reconledger/internal/core/target"
	"reconledger/internal/pkg/advisory"
	"reconledger/internal/pkg/fingerprint"
	"reconledger/internal/pkg/ledger"
	"reconledger/internal/pkg/logger"
	"reconledger/internal/pkg/profile"
)

// 账本记录类型
const (
	RecordPortScan    = "port_scan"
	RecordCertificate = "certificate"
)

// Record 写入账本的负载
type Record struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// ScanOutcome 一次扫描的结果与对应账本条目
type ScanOutcome struct {
	Report  *model.ScanReport `json:"report"`
	Entry   ledger.Entry      `json:"entry"`
	Threats []string          `json:"threats,omitempty"`
	Rules   []string          `json:"firewall_rules,omitempty"`
}

// CertOutcome 证书检查结果与对应账本条目
type CertOutcome struct {
	Result model.CertificateResult `json:"result"`
	Entry  ledger.Entry            `json:"entry"`
}

// Deps 服务依赖
type Deps struct {
	Dialer   dialer.Dialer
	Engine   *fingerprint.Engine
	Advisory port.AdvisoryLookup
	Ledger   *ledger.Ledger
	Profiles *profile.Store
	Options  port.Options
	Cert     *cert.Validator
}

// Service 侦察服务
type Service struct {
	dialer   dialer.Dialer
	engine   *fingerprint.Engine
	advisory port.AdvisoryLookup
	scanner  *port.Scanner
	certs    *cert.Validator
	ledger   *ledger.Ledger
	profiles *profile.Store
	options  port.Options
}

// NewService 按依赖创建服务，缺省项使用默认实现
func NewService(deps Deps) *Service {
	if deps.Engine == nil {
		deps.Engine = fingerprint.NewEngine()
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.New()
	}
	if deps.Profiles == nil {
		deps.Profiles = profile.NewStore("")
	}
	if deps.Cert == nil {
		deps.Cert = cert.NewValidator(deps.Dialer, cert.DefaultTimeout)
	}
	if deps.Options.ConcurrencyLimit == 0 {
		deps.Options = port.DefaultOptions()
	}

	return &Service{
		dialer:   deps.Dialer,
		engine:   deps.Engine,
		advisory: deps.Advisory,
		scanner:  port.NewScanner(deps.Dialer, deps.Engine, deps.Advisory),
		certs:    deps.Cert,
		ledger:   deps.Ledger,
		profiles: deps.Profiles,
		options:  deps.Options,
	}
}

// New 按配置创建服务并打开账本
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	d, err := dialer.New(cfg.Proxy.URL, cfg.Scan.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("create dialer: %w", err)
	}

	engine := fingerprint.NewEngine()
	if cfg.Fingerprint.RulesFile != "" {
		if engine, err = fingerprint.NewEngineFromFile(cfg.Fingerprint.RulesFile); err != nil {
			return nil, err
		}
	}

	var adv port.AdvisoryLookup
	if cfg.Advisory.Enabled {
		adv = advisory.NewClient(cfg.Advisory.BaseURL, cfg.Advisory.Timeout)
	}

	l, err := ledger.OpenFromConfig(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}

	logger.LogSystemEvent("Recon", "Init", "recon service ready", logger.InfoLevel, map[string]interface{}{
		"ledger_backend": cfg.Ledger.Backend,
		"ledger_entries": l.Len(),
		"proxy":          cfg.Proxy.URL != "",
		"advisory":       cfg.Advisory.Enabled,
	})

	return NewService(Deps{
		Dialer:   d,
		Engine:   engine,
		Advisory: adv,
		Ledger:   l,
		Profiles: profile.NewStore(cfg.Profile.Dir),
		Options:  ScanOptions(cfg),
		Cert:     cert.NewValidator(d, cfg.Cert.Timeout),
	}), nil
}

// ScanOptions 从配置生成默认扫描选项
func ScanOptions(cfg *config.Config) port.Options {
	opts := port.DefaultOptions()
	if cfg == nil {
		return opts
	}
	if s := cfg.Scan; s != nil {
		opts.ConcurrencyLimit = s.Concurrency
		opts.ConnectTimeout = s.ConnectTimeout
		opts.BannerTimeout = s.BannerTimeout
		opts.GracePeriod = s.GracePeriod
		opts.StrictPortSpec = s.StrictPortSpec
		opts.ActiveProbe = s.ActiveProbe
		opts.Adaptive = s.Adaptive
	}
	if a := cfg.Advisory; a != nil {
		opts.Advisory = a.Enabled
		opts.AdvisoryConcurrency = a.Concurrency
	}
	return opts
}

// Options 返回默认扫描选项的副本
func (s *Service) Options() port.Options {
	return s.options
}

// Ledger 返回账本
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// Profiles 返回配置档存储
func (s *Service) Profiles() *profile.Store {
	return s.profiles
}

// Engine 返回指纹引擎
func (s *Service) Engine() *fingerprint.Engine {
	return s.engine
}

// Close 关闭账本存储
func (s *Service) Close() error {
	return s.ledger.Close()
}

// ResolvePortSpec 配置档名优先于端口表达式
func (s *Service) ResolvePortSpec(spec, profileName string) (string, error) {
	if profileName == "" {
		return spec, nil
	}
	p, err := s.profiles.LoadProfile(profileName)
	if err != nil {
		return "", err
	}
	return p.Spec, nil
}

// RunScan 执行端口扫描并把报告写入账本
func (s *Service) RunScan(ctx context.Context, input, spec string, opts port.Options, sink port.Sink) (*ScanOutcome, error) {
	report, err := s.scanner.ScanStream(ctx, input, spec, opts, sink)
	if err != nil {
		return nil, err
	}

	// 扫描被取消时依然记账，写入不跟随扫描上下文取消
	entry, err := s.ledger.Append(context.WithoutCancel(ctx), Record{Kind: RecordPortScan, Data: report})
	if err != nil {
		return nil, fmt.Errorf("record scan %s: %w", report.ID, err)
	}

	return &ScanOutcome{
		Report:  report,
		Entry:   entry,
		Threats: analysis.DetectThreats(report),
		Rules:   analysis.RecommendFirewallRules(report),
	}, nil
}

// RunTemplate 按模板执行扫描
func (s *Service) RunTemplate(ctx context.Context, name string, sink port.Sink) (*ScanOutcome, error) {
	t, err := s.profiles.LoadTemplate(name)
	if err != nil {
		return nil, err
	}
	return s.RunScan(ctx, t.Target, t.Ports, ApplyTemplate(s.options, t.Options), sink)
}

// ApplyTemplate 用模板里的非零值覆盖默认选项
func ApplyTemplate(base port.Options, t profile.TemplateOptions) port.Options {
	if t.Concurrency > 0 {
		base.ConcurrencyLimit = t.Concurrency
	}
	if t.ConnectTimeout > 0 {
		base.ConnectTimeout = t.ConnectTimeout
	}
	if t.BannerTimeout > 0 {
		base.BannerTimeout = t.BannerTimeout
	}
	base.StrictPortSpec = base.StrictPortSpec || t.Strict
	base.ActiveProbe = base.ActiveProbe || t.ActiveProbe
	base.Advisory = base.Advisory || t.Advisory
	base.Adaptive = base.Adaptive || t.Adaptive
	return base
}

// ValidateCertificate 检查证书并把结果写入账本
func (s *Service) ValidateCertificate(ctx context.Context, hostname string, portNum int) (*CertOutcome, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}

	start := time.Now()
	result := s.certs.Validate(ctx, hostname, portNum)

	status := "completed"
	if result.Error != nil {
		status = "failed"
	}
	logger.LogScanOperation("", RecordCertificate, fmt.Sprintf("%s:%d", result.Hostname, result.Port), status, 100,
		fmt.Sprintf("valid=%t expired=%t days=%d", result.Valid, result.Expired, result.DaysToExpiration),
		time.Since(start).Milliseconds(), nil)

	entry, err := s.ledger.Append(context.WithoutCancel(ctx), Record{Kind: RecordCertificate, Data: result})
	if err != nil {
		return nil, fmt.Errorf("record certificate check: %w", err)
	}
	return &CertOutcome{Result: result, Entry: entry}, nil
}

// Fingerprint 单端口抓取 Banner 并识别，active 为 true 时追加 HEAD 探测
// 不写入账本
func (s *Service) Fingerprint(ctx context.Context, input string, portNum int, active bool) (*model.ProbeResult, error) {
	if portNum < 1 || portNum > 65535 {
		return nil, fmt.Errorf("port %d out of range [1,65535]", portNum)
	}
	tgt, err := target.Validate(input)
	if err != nil {
		return nil, err
	}

	prober := probe.NewProber(s.dialer, probe.Timeouts{Connect: s.options.ConnectTimeout, Banner: s.options.BannerTimeout})
	res := prober.Run(ctx, tgt, portNum)
	if !res.Open {
		return &res, nil
	}

	var response []byte
	if active {
		response = prober.Head(ctx, tgt, portNum)
	}
	fp := s.engine.Classify(res.Banner, response)
	res.Service = fp.Service
	res.Version = fp.Version
	res.OS = fp.OS
	return &res, nil
}

// VerifyLedger 校验整条账本
func (s *Service) VerifyLedger() error {
	if err := s.ledger.Verify(); err != nil {
		logger.LogSecurityEvent("ledger_integrity", "high", "ledger", err.Error(), nil)
		return err
	}
	logger.LogLedgerOperation("verify", s.ledger.Len(), s.ledger.Tail().Hash, "success", nil)
	return nil
}
