package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"

	"pkhunter/models"
)

// CSVSink writes the ';' delimited, CRLF terminated report.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	file   *os.File
	closed bool
}

// CreateCSVSink creates (or truncates) path and writes the header.
func CreateCSVSink(path string) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}
	s, err := NewCSVSink(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	s.closer = file
	s.file = file
	return s, nil
}

// NewCSVSink writes the header to w. Close flushes but does not close w.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.UseCRLF = true

	s := &CSVSink{w: cw}
	if err := s.writeRecord(models.ReportHeader); err != nil {
		return nil, fmt.Errorf("write report header: %w", err)
	}
	return s, nil
}

func (s *CSVSink) Write(_ context.Context, row models.ReportRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("report sink closed")
	}
	return s.writeRecord(row.Record())
}

func (s *CSVSink) writeRecord(record []string) error {
	if err := s.w.Write(record); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
