// Package report appends mirrored trades to a CSV journal.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/betbot/gomirror/internal/domain"
)

const header = "timestamp,datetime,side,price,size,usdcSize,title,outcome,asset,conditionId,transactionHash,trader"

// Writer appends one CSV row per trade. Fields containing commas, quotes
// or newlines are quoted, with embedded quotes doubled.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// NewWriter opens (or creates) the journal at path, writing the header
// only when the file is new or empty.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(header + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	return &Writer{file: f}, nil
}

// Append writes one trade row.
func (w *Writer) Append(t domain.Trade) error {
	fields := []string{
		strconv.FormatInt(t.Timestamp.Unix(), 10),
		t.Timestamp.Format("2006-01-02 15:04:05"),
		string(t.Side),
		formatFloat(t.Price),
		formatFloat(t.Size),
		formatFloat(t.UsdcSize),
		t.Title,
		t.Outcome,
		t.TokenID,
		t.ConditionID,
		t.TxHash,
		t.Trader,
	}

	for i, f := range fields {
		fields[i] = escape(f)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.file.WriteString(strings.Join(fields, ",") + "\n")
	return err
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// escape quotes the field when needed, doubling embedded quotes.
func escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
