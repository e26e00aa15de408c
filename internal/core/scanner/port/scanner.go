/**
 * 端口扫描编排器
 * @author: sun977
 * @date: 2025.11.06
 * @description: 校验目标 -> 展开端口 -> 有界并发探测 -> 单写者收集 -> 指纹/通告补充 -> 排序出报告
 */
package port

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reconledger/internal/core/lib/network/dialer"
	"reconledger/internal/core/lib/network/qos"
	"reconledger/internal/core/model"
	"reconledger/internal/core/portspec"
	"reconledger/internal/core/scanner/probe"
	"reconledger/internal/core/target"
	"reconledger/internal/pkg/advisory"
	"reconledger/internal/pkg/fingerprint"
	"reconledger/internal/pkg/logger"
)

const (
	ScannerName = "port_scan"

	DefaultConcurrency         = 100
	MaxConcurrency             = 1024
	DefaultGracePeriod         = 3 * time.Second
	DefaultAdvisoryConcurrency = 4
)

// ErrNoPredictor 端口表达式为 predict 但未配置 Predictor
var ErrNoPredictor = errors.New("port spec \"predict\" requires a configured predictor")

// AdvisoryLookup 通告查询，advisory.Client 实现了该接口
type AdvisoryLookup interface {
	Lookup(ctx context.Context, service string) advisory.Status
}

// Options 单次扫描选项
type Options struct {
	ConcurrencyLimit    int           // 同时在途的探测数上限，默认 100，范围 [1,1024]
	ConnectTimeout      time.Duration // 单端口连接超时
	BannerTimeout       time.Duration // Banner 读取超时
	StrictPortSpec      bool          // 端口表达式严格模式
	ActiveProbe         bool          // 对开放端口发送 HEAD 修正系统识别
	Advisory            bool          // 查询已知问题
	Adaptive            bool          // 按 RTT 收敛连接超时，超时时收缩并发
	GracePeriod         time.Duration // 取消后等待在途探测的时长
	AdvisoryConcurrency int           // 通告/主动探测并发数
	ScanID              string        // 预先分配的扫描编号，为空时自动生成
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{
		ConcurrencyLimit:    DefaultConcurrency,
		ConnectTimeout:      probe.DefaultConnectTimeout,
		BannerTimeout:       probe.DefaultBannerTimeout,
		GracePeriod:         DefaultGracePeriod,
		AdvisoryConcurrency: DefaultAdvisoryConcurrency,
	}
}

func (o Options) normalize() Options {
	switch {
	case o.ConcurrencyLimit <= 0:
		o.ConcurrencyLimit = DefaultConcurrency
	case o.ConcurrencyLimit > MaxConcurrency:
		o.ConcurrencyLimit = MaxConcurrency
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = probe.DefaultConnectTimeout
	}
	if o.BannerTimeout <= 0 {
		o.BannerTimeout = probe.DefaultBannerTimeout
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.AdvisoryConcurrency <= 0 {
		o.AdvisoryConcurrency = DefaultAdvisoryConcurrency
	}
	return o
}

// Event 流式进度事件
type Event struct {
	Progress int                // 0-100
	Line     string             // 可直接展示的一行文本
	Result   *model.ProbeResult // 对应端口的原始探测结果，汇总事件为 nil
}

// Sink 事件接收方，只会被串行调用
type Sink func(Event)

// Scanner 端口扫描器，可并发执行多次扫描
type Scanner struct {
	dialer    dialer.Dialer
	engine    *fingerprint.Engine
	advisory  AdvisoryLookup
	predictor portspec.Predictor
}

// NewScanner 创建扫描器
// d 为空时直连，engine 为空时使用内置规则，adv 为空时不做通告查询
func NewScanner(d dialer.Dialer, engine *fingerprint.Engine, adv AdvisoryLookup) *Scanner {
	if engine == nil {
		engine = fingerprint.NewEngine()
	}
	return &Scanner{dialer: d, engine: engine, advisory: adv}
}

// SetPredictor 设置端口预测器，启用 "predict" 端口表达式
func (s *Scanner) SetPredictor(p portspec.Predictor) {
	s.predictor = p
}

// Engine 返回指纹引擎
func (s *Scanner) Engine() *fingerprint.Engine {
	return s.engine
}

// Scan 执行扫描并返回完整报告
func (s *Scanner) Scan(ctx context.Context, input, spec string, opts Options) (*model.ScanReport, error) {
	return s.ScanStream(ctx, input, spec, opts, nil)
}

// ScanStream 执行扫描，每个端口完成时向 sink 推送一条事件，结束时推送 100% 汇总事件
// 只有目标非法、严格模式下端口表达式非法时返回 error；取消时返回带标记的报告
func (s *Scanner) ScanStream(ctx context.Context, input, spec string, opts Options, sink Sink) (*model.ScanReport, error) {
	opts = opts.normalize()

	tgt, err := target.Validate(input)
	if err != nil {
		return nil, err
	}

	exp, err := s.resolvePorts(ctx, tgt, spec, opts)
	if err != nil {
		return nil, err
	}

	scanID := opts.ScanID
	if scanID == "" {
		scanID = model.NewScanID()
	}
	report := &model.ScanReport{
		ID:               scanID,
		Target:           tgt.Address,
		StartedAt:        time.Now(),
		PortSpecFallback: exp.FellBack,
	}
	logger.LogScanOperation(report.ID, ScannerName, tgt.Address, "running", 0, "", 0, map[string]interface{}{
		"ports":       len(exp.Ports),
		"concurrency": opts.ConcurrencyLimit,
		"adaptive":    opts.Adaptive,
		"fallback":    exp.FellBack,
	})

	prober := probe.NewProber(s.dialer, probe.Timeouts{Connect: opts.ConnectTimeout, Banner: opts.BannerTimeout})

	results := s.sweep(ctx, prober, tgt, exp.Ports, opts, sink)
	report.Cancelled = ctx.Err() != nil

	s.enrich(ctx, prober, tgt, results, opts)

	sort.Slice(results, func(i, j int) bool { return results[i].Port < results[j].Port })
	report.Details = results
	report.PortsScanned = len(results)
	report.OpenPorts = make([]int, 0)
	for _, r := range results {
		if r.Open {
			report.OpenPorts = append(report.OpenPorts, r.Port)
		}
	}
	report.FinishedAt = time.Now()

	status := "completed"
	line := fmt.Sprintf("Scan complete: %d open of %d ports on %s", len(report.OpenPorts), report.PortsScanned, tgt.Address)
	if report.Cancelled {
		status = "cancelled"
		line = fmt.Sprintf("Scan cancelled: %d open of %d ports on %s", len(report.OpenPorts), report.PortsScanned, tgt.Address)
	}
	emit(sink, Event{Progress: 100, Line: line})

	logger.LogScanOperation(report.ID, ScannerName, tgt.Address, status, 100,
		fmt.Sprintf("%d open", len(report.OpenPorts)), report.Duration().Milliseconds(), map[string]interface{}{
			"open_ports": report.OpenPorts,
		})
	return report, nil
}

// resolvePorts 展开端口表达式，predict 关键字交给 Predictor
func (s *Scanner) resolvePorts(ctx context.Context, tgt model.Target, spec string, opts Options) (*portspec.Expansion, error) {
	if !isPredict(spec) {
		return portspec.ExpandWithOptions(spec, portspec.Options{Strict: opts.StrictPortSpec})
	}
	if s.predictor == nil {
		return nil, ErrNoPredictor
	}

	ports, err := s.predictor.Predict(ctx, tgt)
	if err == nil {
		ports = portspec.Normalize(ports)
	}
	if err != nil || len(ports) == 0 {
		reason := "predictor returned no ports"
		if err != nil {
			reason = "predictor failed: " + err.Error()
		}
		logger.Warnf("port spec %q: %s, using baseline ports", spec, reason)
		return &portspec.Expansion{Ports: portspec.Baseline(), FellBack: true, Reason: reason}, nil
	}
	return &portspec.Expansion{Ports: ports}, nil
}

// outcome 探测协程交给收集协程的结果
type outcome struct {
	idx    int
	result model.ProbeResult
}

// sweep 有界并发探测全部端口，返回与 ports 一一对应的结果
//
// 收集协程是结果槽位的唯一写者；取消后停止派发，在途探测在宽限期后被放弃。
// 未派发的端口记为 cancelled，被放弃的记为 abandoned，保证结果数等于端口数。
func (s *Scanner) sweep(ctx context.Context, prober *probe.Prober, tgt model.Target, ports []int, opts Options, sink Sink) []model.ProbeResult {
	n := len(ports)
	results := make([]model.ProbeResult, n)
	filled := make([]bool, n)

	limiter := qos.NewFixedLimiter(opts.ConcurrencyLimit)
	if opts.Adaptive {
		limiter = qos.NewAdaptiveLimiter(opts.ConcurrencyLimit, max(1, opts.ConcurrencyLimit/10), opts.ConcurrencyLimit)
	}
	rtt := qos.NewRttEstimator()

	// 缓冲区足够容纳全部结果，被放弃的探测晚到时也不会阻塞
	outcomes := make(chan outcome, n)
	stop := make(chan struct{})
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		done := 0
		record := func(o outcome) {
			if filled[o.idx] {
				return
			}
			results[o.idx] = o.result
			filled[o.idx] = true
			done++
			r := o.result
			emit(sink, Event{Progress: done * 100 / n, Line: resultLine(tgt, r), Result: &r})
		}
		for {
			select {
			case o := <-outcomes:
				record(o)
			case <-stop:
				for {
					select {
					case o := <-outcomes:
						record(o)
					default:
						return
					}
				}
			}
		}
	}()

	// 探测本身不随扫描取消而中断，由各自的超时收尾
	probeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	dispatched := 0
	for i, p := range ports {
		if err := limiter.Acquire(ctx); err != nil {
			break
		}
		dispatched++

		wg.Add(1)
		go func(idx, port int) {
			defer wg.Done()
			defer limiter.Release()

			timeout := opts.ConnectTimeout
			if opts.Adaptive {
				timeout = rtt.Bound(opts.ConnectTimeout)
			}
			r := prober.RunWithTimeout(probeCtx, tgt, port, timeout)

			if opts.Adaptive {
				switch {
				case r.Open, r.Reason == model.ReasonRefused:
					rtt.Update(r.Latency)
					limiter.OnSuccess()
				case r.TimedOut:
					limiter.OnFailure()
				}
			}
			outcomes <- outcome{idx: idx, result: r}
		}(i, p)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		grace := time.NewTimer(opts.GracePeriod)
		select {
		case <-finished:
		case <-grace.C:
			logger.Warnf("scan %s: grace period %s elapsed, abandoning in-flight probes", tgt, opts.GracePeriod)
		}
		grace.Stop()
	}

	close(stop)
	<-collected

	for i := range results {
		if filled[i] {
			continue
		}
		reason := model.ReasonAbandoned
		if i >= dispatched {
			reason = model.ReasonCancelled
		}
		results[i] = model.ClosedResult(ports[i], reason)
	}
	return results
}

// enrich 为开放端口补充指纹与通告，每个协程只写自己的槽位
func (s *Scanner) enrich(ctx context.Context, prober *probe.Prober, tgt model.Target, results []model.ProbeResult, opts Options) {
	lookupCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(opts.AdvisoryConcurrency)
	for i := range results {
		if !results[i].Open {
			continue
		}
		g.Go(func() error {
			r := &results[i]

			var active []byte
			if opts.ActiveProbe && ctx.Err() == nil {
				active = prober.Head(lookupCtx, tgt, r.Port)
			}
			fp := s.engine.Classify(r.Banner, active)
			r.Service = fp.Service
			r.Version = fp.Version
			r.OS = fp.OS

			if opts.Advisory && s.advisory != nil {
				name := advisoryQuery(fp)
				if name == "" {
					r.Advisory = advisory.Unavailable().String()
				} else {
					r.Advisory = s.advisory.Lookup(lookupCtx, name).String()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// advisoryQuery 优先用产品名查询，其次服务名
func advisoryQuery(fp fingerprint.Fingerprint) string {
	if fp.Product != "" && fp.Product != model.Unknown {
		return fp.Product
	}
	if fp.Service != "" && fp.Service != model.Unknown {
		return fp.Service
	}
	return ""
}

func resultLine(tgt model.Target, r model.ProbeResult) string {
	if r.Open {
		if r.Banner != "" {
			return fmt.Sprintf("%s open: %s", tgt.HostPort(r.Port), r.Banner)
		}
		return fmt.Sprintf("%s open", tgt.HostPort(r.Port))
	}
	return fmt.Sprintf("%s %s (%s)", tgt.HostPort(r.Port), r.State, r.Reason)
}

func emit(sink Sink, ev Event) {
	if sink != nil {
		sink(ev)
	}
}

func isPredict(spec string) bool {
	return strings.EqualFold(strings.TrimSpace(spec), portspec.KeywordPredict)
}
