package options

import "fmt"

// FingerprintOptions 单端口指纹识别参数
type FingerprintOptions struct {
	Target string
	Port   int
	Active bool
}

func NewFingerprintOptions() *FingerprintOptions {
	return &FingerprintOptions{}
}

func (o *FingerprintOptions) Validate() error {
	if o.Target == "" {
		return fmt.Errorf("target is required")
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", o.Port)
	}
	return nil
}
