// Package report writes one row per investigated candidate.
package report

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"pkhunter/models"
)

// Sink is an append-only report writer. Write must not return before the row
// is handed to the underlying storage.
type Sink interface {
	Write(ctx context.Context, row models.ReportRow) error
	Close() error
}

// DefaultReportPath returns ./PKHunter-report-<date>-<time>.csv for now.
func DefaultReportPath(now time.Time) string {
	return "./PKHunter-report-" + now.Format("20060102-150405") + ".csv"
}

// OpenFile opens the file sink matching the extension of path: .xlsx gets a
// spreadsheet, anything else the delimited text report.
func OpenFile(path string) (Sink, error) {
	if isSpreadsheet(path) {
		return NewXLSXSink(path)
	}
	return CreateCSVSink(path)
}

// WritesPerRow reports whether the file sink for path persists every row as
// it is written. Spreadsheets are only saved on Close.
func WritesPerRow(path string) bool {
	return !isSpreadsheet(path)
}

func isSpreadsheet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// MultiSink writes every row to each sink in order.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, row models.ReportRow) error {
	for _, s := range m {
		if err := s.Write(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
