package reporter

import (
	"strconv"

	"reconledger/internal/core/model"
	"reconledger/internal/pkg/ledger"
)

const payloadPreview = 60

// ledgerTable 账本条目的表格视图
type ledgerTable []ledger.Entry

// LedgerTable 把账本条目包装为 TabularData
func LedgerTable(entries []ledger.Entry) TabularData {
	return ledgerTable(entries)
}

func (t ledgerTable) Headers() []string {
	return []string{"Index", "Timestamp", "Previous Hash", "Hash", "Payload"}
}

func (t ledgerTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			strconv.Itoa(e.Index),
			e.Timestamp.Format("2006-01-02 15:04:05"),
			short(e.PreviousHash),
			short(e.Hash),
			preview(string(e.Payload)),
		})
	}
	return rows
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16]
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= payloadPreview {
		return s
	}
	return string(runes[:payloadPreview]) + "..."
}

var _ TabularData = (*model.ScanReport)(nil)
var _ TabularData = model.CertificateResult{}
