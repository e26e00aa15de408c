// Package portspec 解析端口表达式
//
// 语法: 逗号分隔的单端口或闭区间，如 "22,80,8000-8100"；"all" 表示基线端口集。
// 默认模式下非法片段整体回退到基线端口集，越界端口被丢弃；严格模式下两者都返回 InvalidPortSpecError。
package portspec

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"reconledger/internal/core/model"
	"reconledger/internal/pkg/logger"
)

const (
	MinPort = 1
	MaxPort = 65535

	// KeywordAll 基线端口集关键字
	KeywordAll = "all"
	// KeywordPredict 交给 Predictor 生成端口
	KeywordPredict = "predict"
)

// baselinePorts 常用服务端口
var baselinePorts = []int{21, 22, 23, 25, 53, 80, 110, 143, 443, 3306, 8080, 8081, 8443, 8888}

// Baseline 返回基线端口集的副本
func Baseline() []int {
	return append([]int(nil), baselinePorts...)
}

// Options 解析选项
type Options struct {
	Strict bool // 严格模式
}

// Expansion 解析结果
type Expansion struct {
	Ports    []int    // 升序、去重
	FellBack bool     // 是否回退到了基线端口集
	Reason   string   // 回退原因
	Dropped  []string // 因越界被丢弃的片段
}

// Predictor 端口预测接口，按目标给出候选端口；仓库内不提供实现
type Predictor interface {
	Predict(ctx context.Context, target model.Target) ([]int, error)
}

// Expand 默认模式解析，永不失败
func Expand(spec string) []int {
	exp, _ := ExpandWithOptions(spec, Options{})
	return exp.Ports
}

// ExpandWithOptions 按选项解析端口表达式
func ExpandWithOptions(spec string, opts Options) (*Expansion, error) {
	trimmed := strings.TrimSpace(spec)
	if strings.EqualFold(trimmed, KeywordAll) {
		return &Expansion{Ports: Baseline()}, nil
	}

	var (
		seen      = make([]bool, MaxPort+1)
		malformed []string
		dropped   []string
	)

	for _, raw := range strings.Split(trimmed, ",") {
		token := strings.TrimSpace(raw)
		lo, hi, ok := parseToken(token)
		if !ok {
			malformed = append(malformed, raw)
			continue
		}
		if lo < MinPort || hi > MaxPort {
			dropped = append(dropped, token)
		}
		for p := max(lo, MinPort); p <= min(hi, MaxPort); p++ {
			seen[p] = true
		}
	}

	if opts.Strict {
		if len(malformed) > 0 {
			return nil, &model.InvalidPortSpecError{Spec: spec, Tokens: malformed, Reason: "malformed token"}
		}
		if len(dropped) > 0 {
			return nil, &model.InvalidPortSpecError{Spec: spec, Tokens: dropped, Reason: "port out of range [1,65535]"}
		}
	}

	if len(malformed) > 0 {
		return fallback(spec, "malformed token: "+strings.Join(malformed, ",")), nil
	}

	ports := make([]int, 0, 64)
	for p := MinPort; p <= MaxPort; p++ {
		if seen[p] {
			ports = append(ports, p)
		}
	}

	if len(dropped) > 0 {
		logger.WithFields(logrus.Fields{
			"spec":    spec,
			"dropped": dropped,
		}).Warn("port spec: dropped out-of-range values")
	}

	if len(ports) == 0 {
		if opts.Strict {
			return nil, &model.InvalidPortSpecError{Spec: spec, Reason: "no ports"}
		}
		exp := fallback(spec, "no valid ports")
		exp.Dropped = dropped
		return exp, nil
	}

	return &Expansion{Ports: ports, Dropped: dropped}, nil
}

// fallback 回退到基线端口集并记录告警
func fallback(spec, reason string) *Expansion {
	logger.WithFields(logrus.Fields{
		"spec":   spec,
		"reason": reason,
	}).Warn("port spec: falling back to baseline port set")
	return &Expansion{Ports: Baseline(), FellBack: true, Reason: reason}
}

// parseToken 解析单个片段，返回闭区间
// 数字超出 int 范围时按越界处理
func parseToken(token string) (lo, hi int, ok bool) {
	if token == "" {
		return 0, 0, false
	}
	start, end, isRange := strings.Cut(token, "-")
	if !isRange {
		n, ok := parseNumber(token)
		return n, n, ok
	}

	lo, ok1 := parseNumber(strings.TrimSpace(start))
	hi, ok2 := parseNumber(strings.TrimSpace(end))
	if !ok1 || !ok2 || lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// parseNumber 只接受纯数字
func parseNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// 纯数字但溢出
		return MaxPort + 1, true
	}
	return n, true
}

// Normalize 对任意端口列表排序去重并过滤越界值，Predictor 输出经过这里
func Normalize(ports []int) []int {
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p >= MinPort && p <= MaxPort {
			out = append(out, p)
		}
	}
	sort.Ints(out)

	uniq := make([]int, 0, len(out))
	for _, p := range out {
		if len(uniq) == 0 || uniq[len(uniq)-1] != p {
			uniq = append(uniq, p)
		}
	}
	return uniq
}
