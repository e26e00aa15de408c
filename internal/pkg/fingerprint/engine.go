// Package fingerprint 基于 Banner 的服务、版本、操作系统识别
package fingerprint

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"

	"reconledger/internal/core/model"
)

// 防止恶意 Banner 触发回溯爆炸
const matchTimeout = 100 * time.Millisecond

// CompiledRule 编译后的规则，可单独测试
type CompiledRule struct {
	Rule     Rule
	version  *regexp2.Regexp
	children []*CompiledRule
}

// Compile 编译一条规则及其子规则
func Compile(rule Rule) (*CompiledRule, error) {
	cr := &CompiledRule{Rule: rule}
	if rule.Version != "" {
		re, err := regexp2.Compile(rule.Version, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid version pattern: %w", rule.Name, err)
		}
		re.MatchTimeout = matchTimeout
		cr.version = re
	}
	for _, child := range rule.Children {
		cc, err := Compile(child)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		cr.children = append(cr.children, cc)
	}
	return cr, nil
}

// Matches 关键字谓词
func (r *CompiledRule) Matches(banner string) bool {
	for _, kw := range r.Rule.Keywords {
		if kw != "" && strings.Contains(banner, kw) {
			return true
		}
	}
	return false
}

// Extract 在谓词命中后提取指纹
func (r *CompiledRule) Extract(banner string) Fingerprint {
	fp := unknown()
	if r.Rule.Service != "" {
		fp.Service = r.Rule.Service
	}
	fp.Product = r.Rule.Product

	var child *CompiledRule
	for _, c := range r.children {
		if c.Matches(banner) {
			child = c
			break
		}
	}

	if child != nil && child.Rule.Product != "" {
		fp.Product = child.Rule.Product
	}
	if v, ok := child.extractVersion(banner); ok {
		fp.Version = v
	} else if v, ok := r.extractVersion(banner); ok {
		fp.Version = v
	}
	if name, ok := child.extractOS(banner); ok {
		fp.OS = name
	} else if name, ok := r.extractOS(banner); ok {
		fp.OS = name
	}
	return fp
}

func (r *CompiledRule) extractVersion(banner string) (string, bool) {
	if r == nil || r.version == nil {
		return "", false
	}
	m, err := r.version.FindStringMatch(banner)
	if err != nil || m == nil {
		return "", false
	}
	g := m.GroupByNumber(1)
	if g == nil || g.String() == "" {
		return "", false
	}
	return g.String(), true
}

func (r *CompiledRule) extractOS(banner string) (string, bool) {
	if r == nil {
		return "", false
	}
	return matchHint(r.Rule.OS, banner)
}

// matchHint 返回第一个命中的系统推断
func matchHint(hints []OSHint, text string) (string, bool) {
	for _, h := range hints {
		if h.Keyword == "" || strings.Contains(text, h.Keyword) {
			return h.OS, true
		}
	}
	return "", false
}

// Engine 指纹识别引擎，规则可热加载
type Engine struct {
	rules  []*CompiledRule
	refine []OSHint
	mu     sync.RWMutex
}

// NewEngine 使用内置规则创建引擎
func NewEngine() *Engine {
	e := &Engine{}
	if err := e.Reload(RuleSet{Rules: DefaultRules()}); err != nil {
		// 内置规则必须可编译
		panic(err)
	}
	return e
}

// NewEngineFromFile 从 YAML 规则文件创建引擎，path 为空时使用内置规则
func NewEngineFromFile(path string) (*Engine, error) {
	if path == "" {
		return NewEngine(), nil
	}
	set, err := LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	e := &Engine{}
	if err := e.Reload(*set); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadRuleSet 读取 YAML 规则文件
func LoadRuleSet(path string) (*RuleSet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var set RuleSet
	if err := yaml.Unmarshal(content, &set); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if len(set.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	return &set, nil
}

// Reload 替换规则，编译失败时保留旧规则
func (e *Engine) Reload(set RuleSet) error {
	compiled := make([]*CompiledRule, 0, len(set.Rules))
	for _, rule := range set.Rules {
		cr, err := Compile(rule)
		if err != nil {
			return err
		}
		compiled = append(compiled, cr)
	}
	refine := set.Refine
	if len(refine) == 0 {
		refine = DefaultRefineHints()
	}

	e.mu.Lock()
	e.rules = compiled
	e.refine = refine
	e.mu.Unlock()
	return nil
}

// Rules 当前规则
func (e *Engine) Rules() []*CompiledRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*CompiledRule(nil), e.rules...)
}

// ClassifyBanner 第一条命中的规则决定结果，无命中时全部为 Unknown
func (e *Engine) ClassifyBanner(banner string) Fingerprint {
	if banner == "" {
		return unknown()
	}
	for _, r := range e.Rules() {
		if r.Matches(banner) {
			return r.Extract(banner)
		}
	}
	return unknown()
}

// RefineOS 用 HEAD 响应补充系统信息
// 只在响应带 Server 头且命中特征时替换，不会把已有结果改回 Unknown
func (e *Engine) RefineOS(current string, response []byte) string {
	if len(response) == 0 || !bytes.Contains(response, []byte("Server:")) {
		return current
	}
	e.mu.RLock()
	hints := e.refine
	e.mu.RUnlock()

	if name, ok := matchHint(hints, string(response)); ok && name != "" && name != model.Unknown {
		return name
	}
	return current
}

// Classify Banner 识别加可选的主动探测修正
func (e *Engine) Classify(banner string, active []byte) Fingerprint {
	fp := e.ClassifyBanner(banner)
	fp.OS = e.RefineOS(fp.OS, active)
	return fp
}
