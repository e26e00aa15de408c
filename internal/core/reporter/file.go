package reporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// utf8BOM 防止 Excel 打开乱码
const utf8BOM = "\xEF\xBB\xBF"

// CsvReporter 把表格数据导出为 CSV 文件
type CsvReporter struct {
	FilePath string
}

func NewCsvReporter(filePath string) *CsvReporter {
	return &CsvReporter{FilePath: filePath}
}

func (r *CsvReporter) Report(ctx context.Context, data TabularData) error {
	return SaveCsvResult(r.FilePath, data)
}

// WriteCsv 写入带 BOM 的 CSV
func WriteCsv(w io.Writer, data TabularData) error {
	headers := data.Headers()
	if len(headers) == 0 {
		return fmt.Errorf("no tabular data found to export")
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := cw.WriteAll(data.Rows()); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return cw.Error()
}

// SaveCsvResult 一次性把结果保存为 CSV 文件
func SaveCsvResult(path string, data TabularData) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	return WriteCsv(f, data)
}

// JsonReporter 把原始结果导出为 JSON 文件
type JsonReporter struct {
	FilePath string
}

func NewJsonReporter(filePath string) *JsonReporter {
	return &JsonReporter{FilePath: filePath}
}

func (r *JsonReporter) Report(ctx context.Context, data TabularData) error {
	return SaveJsonResult(r.FilePath, data)
}

// SaveJsonResult 缩进格式保存任意结果
func SaveJsonResult(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write json file: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
