package fingerprint

import "reconledger/internal/core/model"

// Fingerprint 识别结果，无法识别的字段为 "Unknown"
type Fingerprint struct {
	Service string `json:"service"`
	Product string `json:"product,omitempty"`
	Version string `json:"version"`
	OS      string `json:"os"`
}

// unknown 全部未知的结果
func unknown() Fingerprint {
	return Fingerprint{Service: model.Unknown, Version: model.Unknown, OS: model.Unknown}
}

// Rule 声明式指纹规则
//
// Keywords 任一出现在 Banner 中即命中（区分大小写）。
// 命中后依次取第一个命中的子规则补充产品、版本与系统；子规则未给出的字段回落到父规则。
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Service  string   `yaml:"service,omitempty" json:"service,omitempty"`
	Product  string   `yaml:"product,omitempty" json:"product,omitempty"`
	Version  string   `yaml:"version,omitempty" json:"version,omitempty"` // regexp2 表达式，取第 1 个捕获组
	OS       []OSHint `yaml:"os,omitempty" json:"os,omitempty"`
	Children []Rule   `yaml:"children,omitempty" json:"children,omitempty"`
}

// OSHint 系统推断，Keyword 为空表示无条件
type OSHint struct {
	Keyword string `yaml:"keyword,omitempty" json:"keyword,omitempty"`
	OS      string `yaml:"os" json:"os"`
}

// RuleSet 规则文件结构
type RuleSet struct {
	Rules  []Rule   `yaml:"rules"`
	Refine []OSHint `yaml:"refine,omitempty"` // HEAD 响应的系统推断，为空使用内置
}
