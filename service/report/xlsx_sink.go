package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"pkhunter/models"
)

const xlsxSheet = "Sheet1"

// XLSXSink writes the report as a spreadsheet. Rows are streamed but the
// file only exists on disk after Close.
type XLSXSink struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	sw     *excelize.StreamWriter
	row    int
	closed bool
}

func NewXLSXSink(path string) (*XLSXSink, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet writer: %w", err)
	}

	s := &XLSXSink{path: path, file: f, sw: sw}
	if err := s.writeRecord(models.ReportHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write report header: %w", err)
	}
	return s, nil
}

func (s *XLSXSink) Write(_ context.Context, row models.ReportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("report sink closed")
	}
	return s.writeRecord(row.Record())
}

func (s *XLSXSink) writeRecord(record []string) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(record))
	for i, v := range record {
		values[i] = v
	}
	return s.sw.SetRow(cell, values)
}

func (s *XLSXSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	defer s.file.Close()

	if err := s.sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("save report %s: %w", s.path, err)
	}
	return nil
}
