package options

import (
	"fmt"
	"strings"

	"reconledger/internal/core/scanner/cert"
)

// CertOptions 证书检查参数
type CertOptions struct {
	Host   string
	Port   int
	Output OutputOptions
}

func NewCertOptions() *CertOptions {
	return &CertOptions{Port: cert.DefaultPort}
}

func (o *CertOptions) Validate() error {
	if strings.TrimSpace(o.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", o.Port)
	}
	return nil
}
