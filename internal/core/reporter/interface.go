/**
 * 结果输出接口定义
 * @author: sun977
 * @date: 2025.11.12
 * @description: 扫描报告、证书结果与账本条目统一按表格输出到控制台或文件
 */

package reporter

import (
	"context"
	"errors"
)

// TabularData 可以渲染为表格的数据
type TabularData interface {
	Headers() []string
	Rows() [][]string
}

// Reporter 结果输出
type Reporter interface {
	Report(ctx context.Context, data TabularData) error
}

// MultiReporter 同时输出到多个目标 (e.g., Console + File)
type MultiReporter struct {
	reporters []Reporter
}

func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

// Add 追加输出目标
func (m *MultiReporter) Add(r Reporter) {
	m.reporters = append(m.reporters, r)
}

// Report 依次输出，汇总所有错误
func (m *MultiReporter) Report(ctx context.Context, data TabularData) error {
	var errs []error
	for _, r := range m.reporters {
		if err := r.Report(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
