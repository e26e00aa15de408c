package cert

import (
	"fmt"
	"strings"
	"time"
)

// 证书时间文本格式
// 人类可读形式（日期可以是空格补齐或零补齐），以及 ASN.1 GeneralizedTime 紧凑形式
var certTimeLayouts = []string{
	"Jan _2 15:04:05 2006",
	"Jan 02 15:04:05 2006",
	"20060102150405Z",
}

// FormatCertTime 渲染为 "Jan _2 15:04:05 2006 GMT"
func FormatCertTime(t time.Time) string {
	return t.UTC().Format("Jan _2 15:04:05 2006") + " GMT"
}

// ParseCertTime 解析证书时间文本，结果为 UTC
func ParseCertTime(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSuffix(v, " GMT")
	v = strings.TrimSuffix(v, " UTC")
	v = strings.TrimSpace(v)

	for _, layout := range certTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized certificate time %q", s)
}

// Validity 有效期计算结果
type Validity struct {
	NotBefore        time.Time
	NotAfter         time.Time
	Valid            bool // notBefore < now < notAfter
	Expired          bool // now > notAfter
	DaysToExpiration int  // 剩余整天数，已过期为 0
}

const secondsPerDay = 24 * 60 * 60

// Evaluate 按给定时刻计算有效期
func Evaluate(notBefore, notAfter string, now time.Time) (Validity, error) {
	nb, err := ParseCertTime(notBefore)
	if err != nil {
		return Validity{}, fmt.Errorf("notBefore: %w", err)
	}
	na, err := ParseCertTime(notAfter)
	if err != nil {
		return Validity{}, fmt.Errorf("notAfter: %w", err)
	}

	v := Validity{
		NotBefore: nb,
		NotAfter:  na,
		Valid:     now.After(nb) && now.Before(na),
		Expired:   now.After(na),
	}
	if now.Before(na) {
		// time.Duration 上限约 292 年，按秒计算以覆盖 9999-12-31 这类不过期证书
		v.DaysToExpiration = int((na.Unix() - now.Unix()) / secondsPerDay)
	}
	return v, nil
}
