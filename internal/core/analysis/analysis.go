// Package analysis 基于扫描报告的风险提示与加固建议
package analysis

import (
	"context"
	"fmt"
	"net"
	"strings"

	"reconledger/internal/core/model"
)

// UnknownService 端口不在常用端口表中
const UnknownService = "Unknown Service"

var wellKnown = map[int]string{
	21:   "FTP",
	22:   "SSH",
	23:   "Telnet",
	25:   "SMTP",
	53:   "DNS",
	80:   "HTTP",
	110:  "POP3",
	143:  "IMAP",
	443:  "HTTPS",
	3306: "MySQL",
	8080: "HTTP-Proxy",
}

// 明文协议，出现即提示
var cleartextServices = map[string]bool{
	"FTP":    true,
	"TELNET": true,
}

// ServiceNameForPort 常用端口名称
func ServiceNameForPort(port int) string {
	if name, ok := wellKnown[port]; ok {
		return name
	}
	return UnknownService
}

// serviceOf 指纹结果优先，未识别时退回端口表
func serviceOf(r model.ProbeResult) string {
	if r.Service != "" && r.Service != model.Unknown {
		return r.Service
	}
	return ServiceNameForPort(r.Port)
}

// DetectThreats 列出开放的明文管理协议端口
func DetectThreats(report *model.ScanReport) []string {
	if report == nil {
		return nil
	}
	var threats []string
	for _, r := range report.Details {
		if !r.Open {
			continue
		}
		service := serviceOf(r)
		if cleartextServices[strings.ToUpper(service)] {
			threats = append(threats, fmt.Sprintf("Port %d (%s) is a potential threat.", r.Port, service))
		}
	}
	return threats
}

// RecommendFirewallRules 为每个开放端口生成一条阻断建议
func RecommendFirewallRules(report *model.ScanReport) []string {
	if report == nil {
		return nil
	}
	var rules []string
	for _, r := range report.Details {
		if r.Open {
			rules = append(rules, fmt.Sprintf("Block incoming traffic on port %d (%s)", r.Port, serviceOf(r)))
		}
	}
	return rules
}

// ReverseLookup 反向解析，无 PTR 记录时返回 false
func ReverseLookup(ctx context.Context, resolver *net.Resolver, ip string) (string, bool) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	names, err := resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return "", false
	}
	return strings.TrimSuffix(names[0], "."), true
}
