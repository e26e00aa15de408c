// Package target 校验扫描目标，只接受 IP 字面量，不做 DNS 解析
package target

import (
	"errors"
	"net/netip"
	"strings"

	"reconledger/internal/core/model"
)

var errEmpty = errors.New("empty target")

// Validate 校验并规范化目标地址
// 支持点分十进制 IPv4、IPv6（可带方括号、可带 zone），IPv4-mapped IPv6 归一为 IPv4
func Validate(input string) (model.Target, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return model.Target{}, &model.InvalidTargetError{Input: input, Err: errEmpty}
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return model.Target{}, &model.InvalidTargetError{Input: input, Err: err}
	}

	if addr.Is4In6() && addr.Zone() == "" {
		addr = addr.Unmap()
	}
	if addr.Is4() {
		return model.Target{Address: addr.String(), Family: model.FamilyIPv4}, nil
	}
	return model.Target{Address: addr.String(), Family: model.FamilyIPv6}, nil
}

// MustValidate 仅用于测试和常量目标
func MustValidate(input string) model.Target {
	t, err := Validate(input)
	if err != nil {
		panic(err)
	}
	return t
}
