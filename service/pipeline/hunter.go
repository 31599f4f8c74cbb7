package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"pkhunter/models"
)

// Hunter 钓鱼工具包狩猎流水线
// Processes a log one line at a time: parse, filter, probe, enrich (UP only)
// and emit. A failing line is logged and skipped; only a failing sink or an
// unreadable log stops the scan.
type Hunter struct {
	parser   LineParser
	filter   CandidateFilter
	prober   KitProber
	enricher DomainEnricher // nil disables WHOIS
	sink     RowSink
	log      *logrus.Entry

	progressCallback func(n int)
	rowCallback      func(models.ReportRow)
}

func NewHunter(parser LineParser, filter CandidateFilter, prober KitProber, enricher DomainEnricher, sink RowSink, log *logrus.Logger) *Hunter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hunter{
		parser:   parser,
		filter:   filter,
		prober:   prober,
		enricher: enricher,
		sink:     sink,
		log:      log.WithField("component", "pipeline"),
	}
}

// SetProgressCallback 设置进度回调，参数为已读取的字节数
func (h *Hunter) SetProgressCallback(callback func(n int)) {
	h.progressCallback = callback
}

// SetRowCallback is called after each row is written.
func (h *Hunter) SetRowCallback(callback func(models.ReportRow)) {
	h.rowCallback = callback
}

// Run scans r to the end. It returns early only when ctx is cancelled, the
// log cannot be read or the sink rejects a row.
func (h *Hunter) Run(ctx context.Context, r io.Reader) (Stats, error) {
	stats := newStats()
	reader := bufio.NewReader(r)

	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return stats, fmt.Errorf("%w: read line %d: %v", models.ErrLogSource, lineNo, readErr)
		}
		if line == "" && readErr == io.EOF {
			return stats, nil
		}
		stats.Bytes += int64(len(line))
		if h.progressCallback != nil {
			h.progressCallback(len(line))
		}

		stats.Lines++
		row, err := h.processLine(ctx, lineNo, line, &stats)
		if err != nil && ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if err != nil {
			h.recordFailure(err, &stats)
		} else if row != nil {
			if werr := h.sink.Write(ctx, *row); werr != nil {
				return stats, fmt.Errorf("write report row for line %d: %w", lineNo, werr)
			}
			stats.Rows++
			stats.ByStatus[row.Status]++
			if h.rowCallback != nil {
				h.rowCallback(*row)
			}
		}

		if readErr == io.EOF {
			return stats, nil
		}
	}
}

// processLine runs one line through the stages. A nil row with a nil error
// means the line was legitimately skipped.
func (h *Hunter) processLine(ctx context.Context, lineNo int, line string, stats *Stats) (row *models.ReportRow, err error) {
	current := stageParsing
	defer func() {
		if r := recover(); r != nil {
			row = nil
			err = &LineError{Line: lineNo, Stage: current, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	rec, err := h.parser.Parse(line)
	if err != nil {
		return nil, &LineError{Line: lineNo, Stage: current, Err: err}
	}
	stats.Matched++

	current = stageFiltering
	candidate, ok, err := h.filter.Candidate(rec)
	if err != nil {
		return nil, &LineError{Line: lineNo, Stage: current, Err: err}
	}
	if !ok {
		return nil, nil
	}
	stats.Candidates++

	current = stageProbing
	entry := h.log.WithFields(logrus.Fields{
		"line":      lineNo,
		"url":       candidate.RefererURL,
		"timestamp": candidate.Timestamp,
	})
	probe := h.prober.Probe(ctx, candidate.RefererURL)
	// an interrupted probe says nothing about the kit
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry = entry.WithField("status", probe.Status)
	if probe.Err != nil {
		entry = entry.WithError(probe.Err)
	}

	var info *models.DomainInfo
	if probe.IsUp() {
		entry = entry.WithField("sha256", probe.ContentHash)
		if h.enricher != nil {
			current = stageEnriching
			di := h.enricher.Lookup(ctx, candidate.Domain)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			info = &di
			entry = entry.WithFields(logrus.Fields{
				"registrar":  di.Registrar,
				"created":    di.CreationDate,
				"expiration": di.ExpirationDate,
			})
		}
	}

	current = stageEmitting
	entry.Infof("[+] %s", candidate.RefererURL)
	r := models.NewReportRow(candidate, probe, info)
	return &r, nil
}

func (h *Hunter) recordFailure(err error, stats *Stats) {
	switch {
	case errors.Is(err, models.ErrLineMismatch):
		stats.Skipped++
	case errors.Is(err, models.ErrRefererExtract):
		h.log.WithError(err).Debug("referer skipped")
	default:
		stats.Failed++
		h.log.WithError(err).Warn("line failed")
	}
}
