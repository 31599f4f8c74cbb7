package pipeline

import (
	"context"

	"pkhunter/models"
)

// LineParser turns a raw log line into a record.
type LineParser interface {
	Parse(line string) (models.LogRecord, error)
}

// CandidateFilter decides whether a record is a suspected kit.
type CandidateFilter interface {
	Candidate(rec models.LogRecord) (models.Candidate, bool, error)
}

// KitProber fetches and classifies a candidate page.
type KitProber interface {
	Probe(ctx context.Context, target string) models.ProbeResult
}

// DomainEnricher looks up registration data.
type DomainEnricher interface {
	Lookup(ctx context.Context, domain string) models.DomainInfo
}

// RowSink receives report rows in encounter order.
type RowSink interface {
	Write(ctx context.Context, row models.ReportRow) error
}
