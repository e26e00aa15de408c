package reporter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"

	"reconledger/internal/core/model"
	"reconledger/internal/pkg/ledger"
)

// ConsoleReporter 控制台输出
type ConsoleReporter struct{}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

func (r *ConsoleReporter) Report(ctx context.Context, data TabularData) error {
	if data == nil {
		return nil
	}
	rows := data.Rows()
	if len(rows) == 0 {
		pterm.Warning.Println("No results found.")
		return nil
	}
	return r.printTableFromData(data.Headers(), rows)
}

// PrintScanReport 打印扫描摘要、开放端口表与分析结果
func (r *ConsoleReporter) PrintScanReport(report *model.ScanReport, threats, rules []string) error {
	if report == nil {
		return nil
	}

	pterm.DefaultSection.Printf("Scan %s", report.ID)
	pterm.Info.Printf("Target %s, %d ports scanned, %d open, took %s\n",
		report.Target, report.PortsScanned, len(report.OpenPorts), report.Duration().Round(time.Millisecond))
	if report.PortSpecFallback {
		pterm.Warning.Println("Port spec could not be parsed, baseline ports were scanned instead.")
	}
	if report.Cancelled {
		pterm.Warning.Println("Scan was cancelled, unfinished ports are reported as timed out.")
	}

	if err := r.Report(context.Background(), report); err != nil {
		return err
	}

	for _, t := range threats {
		pterm.Warning.Println(t)
	}
	if len(rules) > 0 {
		pterm.DefaultSection.WithLevel(2).Println("Firewall recommendations")
		for _, rule := range rules {
			pterm.Println("  " + rule)
		}
	}
	return nil
}

// PrintCertificate 打印证书检查结果
func (r *ConsoleReporter) PrintCertificate(res model.CertificateResult) error {
	if res.Error != nil {
		pterm.Error.Printf("%s:%d %s: %s\n", res.Hostname, res.Port, res.Error.Kind, res.Error.Reason)
		return nil
	}
	if err := r.Report(context.Background(), res); err != nil {
		return err
	}
	if res.ChainError != "" {
		pterm.Warning.Println("Chain verification: " + res.ChainError)
	}
	return nil
}

// PrintLedger 打印账本条目与校验结果
func (r *ConsoleReporter) PrintLedger(entries []ledger.Entry, verifyErr error) error {
	if err := r.Report(context.Background(), LedgerTable(entries)); err != nil {
		return err
	}
	if verifyErr != nil {
		pterm.Error.Println(verifyErr.Error())
	} else {
		pterm.Success.Printf("Ledger verified: %d entries\n", len(entries))
	}
	return nil
}

// StreamPrinter 返回把进度行写到 w 的函数
func StreamPrinter(w io.Writer) func(progress int, line string) {
	return func(progress int, line string) {
		fmt.Fprintf(w, "[%3d%%] %s\n", progress, line)
	}
}

func (r *ConsoleReporter) printTableFromData(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	tableData := pterm.TableData{headers}
	tableData = append(tableData, rows...)

	err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(tableData).
		Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
