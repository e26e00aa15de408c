// Package cert TLS 证书有效期与信任链校验
package cert

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"time"

	"reconledger/internal/core/lib/network/dialer"
	"reconledger/internal/core/model"
	"reconledger/internal/pkg/logger"
)

const (
	DefaultPort    = 443
	DefaultTimeout = 5 * time.Second
)

// Validator 证书校验器
// 握手阶段不校验证书，过期或自签证书同样能拿到有效期；信任链单独校验
type Validator struct {
	dialer  dialer.Dialer
	timeout time.Duration
	roots   *x509.CertPool // nil 使用系统根证书
	now     func() time.Time
}

// NewValidator 创建证书校验器
func NewValidator(d dialer.Dialer, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if d == nil {
		d = dialer.NewDefaultDialer(timeout)
	}
	return &Validator{dialer: d, timeout: timeout, now: time.Now}
}

// WithRoots 指定信任根
func (v *Validator) WithRoots(pool *x509.CertPool) *Validator {
	v.roots = pool
	return v
}

// Validate 连接 hostname:port 并校验证书，失败原因写在结果的 Error 字段
func (v *Validator) Validate(ctx context.Context, hostname string, port int) model.CertificateResult {
	if port <= 0 {
		port = DefaultPort
	}
	result := model.CertificateResult{Hostname: hostname, Port: port}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := v.dialer.DialContext(ctx, "tcp", net.JoinHostPort(hostname, strconv.Itoa(port)))
	if err != nil {
		return fail(result, model.CertErrConnect, err.Error())
	}

	conn := tls.Client(raw, &tls.Config{
		ServerName:         hostname,
		InsecureSkipVerify: true, // 信任链在下面单独校验
		MinVersion:         tls.VersionTLS10,
	})
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		return fail(result, model.CertErrHandshake, err.Error())
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fail(result, model.CertErrNoCertificate, "server presented no certificate")
	}
	leaf := state.PeerCertificates[0]
	now := v.now()

	result.Issuer = leaf.Issuer.String()
	result.Subject = leaf.Subject.String()
	result.NotBefore = FormatCertTime(leaf.NotBefore)
	result.NotAfter = FormatCertTime(leaf.NotAfter)

	validity, err := Evaluate(result.NotBefore, result.NotAfter, now)
	if err != nil {
		return fail(result, model.CertErrUnparseableDate, err.Error())
	}
	result.Valid = validity.Valid
	result.Expired = validity.Expired
	result.DaysToExpiration = validity.DaysToExpiration

	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       hostname,
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	}); err != nil {
		result.ChainError = err.Error()
	} else {
		result.Trusted = true
	}

	logger.Debugf("certificate %s:%d valid=%t expired=%t days=%d trusted=%t",
		hostname, port, result.Valid, result.Expired, result.DaysToExpiration, result.Trusted)
	return result
}

func fail(result model.CertificateResult, kind model.CertErrorKind, reason string) model.CertificateResult {
	result.Valid = false
	result.Error = &model.CertError{Kind: kind, Reason: reason}
	logger.Debugf("certificate %s:%d %s: %s", result.Hostname, result.Port, kind, reason)
	return result
}
