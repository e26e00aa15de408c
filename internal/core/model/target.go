package model

import (
	"net"
	"strconv"
)

// Family 地址族
type Family string

const (
	FamilyIPv4 Family = "v4"
	FamilyIPv6 Family = "v6"
)

// Target 已校验的扫描目标，只能由 target.Validate 构造
type Target struct {
	Address string `json:"address"`
	Family  Family `json:"family"`
}

// HostPort 拼接拨号地址，IPv6 自动加方括号
func (t Target) HostPort(port int) string {
	return net.JoinHostPort(t.Address, strconv.Itoa(port))
}

func (t Target) String() string {
	return t.Address
}
