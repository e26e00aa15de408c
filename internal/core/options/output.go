package options

// OutputOptions 结果输出的通用参数
type OutputOptions struct {
	OutputJson string // --oj, --outputJson
	OutputCsv  string // --oc, --outputCsv
}

// Enabled 是否需要写文件
func (o OutputOptions) Enabled() bool {
	return o.OutputJson != "" || o.OutputCsv != ""
}
