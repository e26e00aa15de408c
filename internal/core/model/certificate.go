package model

import (
	"fmt"
	"strconv"
)

// CertErrorKind 证书校验失败类别
type CertErrorKind string

const (
	CertErrConnect         CertErrorKind = "connect_failed"
	CertErrHandshake       CertErrorKind = "handshake_failed"
	CertErrNoCertificate   CertErrorKind = "no_certificate"
	CertErrUnparseableDate CertErrorKind = "unparseable_date"
)

// CertError 证书校验失败原因，作为结果数据返回而不是 error
type CertError struct {
	Kind   CertErrorKind `json:"kind"`
	Reason string        `json:"reason"`
}

func (e *CertError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// CertificateResult 证书校验结果
type CertificateResult struct {
	Hostname         string     `json:"hostname"`
	Port             int        `json:"port"`
	Issuer           string     `json:"issuer,omitempty"`
	Subject          string     `json:"subject,omitempty"`
	NotBefore        string     `json:"not_before,omitempty"`
	NotAfter         string     `json:"not_after,omitempty"`
	Valid            bool       `json:"valid"`
	Expired          bool       `json:"expired"`
	DaysToExpiration int        `json:"days_to_expiration"`
	Trusted          bool       `json:"trusted"`
	ChainError       string     `json:"chain_error,omitempty"`
	Error            *CertError `json:"error,omitempty"`
}

// Headers 实现 TabularData 接口
func (r CertificateResult) Headers() []string {
	return []string{"Host", "Subject", "Issuer", "Not Before", "Not After", "Valid", "Expired", "Days Left", "Trusted"}
}

// Rows 实现 TabularData 接口
func (r CertificateResult) Rows() [][]string {
	return [][]string{{
		fmt.Sprintf("%s:%d", r.Hostname, r.Port),
		r.Subject,
		r.Issuer,
		r.NotBefore,
		r.NotAfter,
		strconv.FormatBool(r.Valid),
		strconv.FormatBool(r.Expired),
		strconv.Itoa(r.DaysToExpiration),
		strconv.FormatBool(r.Trusted),
	}}
}
