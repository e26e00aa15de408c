package model

import (
	"fmt"
	"strings"
)

// InvalidTargetError 目标不是合法的 IPv4/IPv6 字面量
type InvalidTargetError struct {
	Input string
	Err   error
}

func (e *InvalidTargetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid target %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("invalid target %q", e.Input)
}

func (e *InvalidTargetError) Unwrap() error {
	return e.Err
}

// InvalidPortSpecError 严格模式下端口表达式不合法
type InvalidPortSpecError struct {
	Spec   string
	Tokens []string // 出错的片段
	Reason string
}

func (e *InvalidPortSpecError) Error() string {
	if len(e.Tokens) == 0 {
		return fmt.Sprintf("invalid port spec %q: %s", e.Spec, e.Reason)
	}
	return fmt.Sprintf("invalid port spec %q: %s [%s]", e.Spec, e.Reason, strings.Join(e.Tokens, ", "))
}
