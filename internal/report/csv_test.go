package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/betbot/gomirror/internal/domain"
)

func sampleTrade() domain.Trade {
	return domain.Trade{
		ID:          "0xabc:42",
		Side:        domain.SideBuy,
		TokenID:     "42",
		Price:       0.457,
		Size:        10,
		UsdcSize:    4.57,
		Title:       "Will it rain?",
		Outcome:     "Yes",
		ConditionID: "0xcond",
		TxHash:      "0xabc",
		Trader:      "0xdef",
		Timestamp:   time.Unix(1756600000, 0),
	}
}

func TestWriterHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(sampleTrade()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	// Reopen: header must not repeat.
	w, err = NewWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w.Append(sampleTrade()); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "timestamp,datetime,side,") {
		t.Fatalf("bad header: %s", lines[0])
	}
	if strings.HasPrefix(lines[1], "timestamp,") {
		t.Fatal("header repeated in data rows")
	}
}

func TestWriterEscapesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	tr := sampleTrade()
	tr.Title = `Will "Team A, Inc." win?`
	if err := w.Append(tr); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `"Will ""Team A, Inc."" win?"`
	if !strings.Contains(string(data), want) {
		t.Fatalf("escaped title %s not found in:\n%s", want, data)
	}
}

func TestWriterPlainFieldsUnquoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(sampleTrade()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	w.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	row := lines[1]
	if strings.Contains(row, `"`) {
		t.Fatalf("plain row should have no quotes: %s", row)
	}
	if !strings.Contains(row, "0.457,10,4.57") {
		t.Fatalf("numeric fields wrong: %s", row)
	}
}
