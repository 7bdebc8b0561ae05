package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nexconsult/egrn-tools/internal/models"
)

// Sort orders records by their on-plan number: numbers ascending,
// non-numeric values after every numeric one. A number is its leading
// run of digits, so "12а" sorts as 12 and "5-6" as 5.
func Sort(records []models.RealtyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, aOK := leadingNumber(records[i].Number)
		b, bOK := leadingNumber(records[j].Number)

		switch {
		case aOK && bOK:
			return a < b
		case aOK:
			return true
		default:
			return false
		}
	})
}

func leadingNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Write stores records as CSV with a header row. Multi-valued cells keep
// their embedded newlines.
func Write(path string, records []models.RealtyRecord) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create result table: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(models.RealtyColumns); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, record := range records {
		if err := w.Write(record.Row()); err != nil {
			f.Close()
			return fmt.Errorf("failed to write record %s: %w", record.CadastralNumber, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush result table: %w", err)
	}
	return f.Close()
}
