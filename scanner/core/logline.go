package core

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"pkhunter/config"
	"pkhunter/models"
)

// noReferer is the value access logs write when the request had no Referer header.
const noReferer = "-"

// LineParser 日志行解析器
// Extracts (timestamp, request, referer) with the configured log_pattern.
type LineParser struct {
	re *regexp2.Regexp
}

// NewLineParser creates a parser bound to patterns.LogLine.
func NewLineParser(patterns *config.PatternSet) *LineParser {
	return &LineParser{re: patterns.LogLine}
}

// Parse matches one raw line. The match must start at the beginning of the
// line. Lines that do not match return models.ErrLineMismatch; a pattern
// that exceeds its match timeout returns models.ErrLineTimeout.
func (p *LineParser) Parse(line string) (models.LogRecord, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return models.LogRecord{}, models.ErrLineMismatch
	}
	line = strings.ToValidUTF8(line, "\uFFFD")

	m, err := p.re.FindStringMatch(line)
	if err != nil {
		// regexp2 only fails a match on timeout
		return models.LogRecord{}, fmt.Errorf("%w: %v", models.ErrLineTimeout, err)
	}
	if m == nil || m.Index != 0 {
		return models.LogRecord{}, models.ErrLineMismatch
	}

	return models.LogRecord{
		Timestamp:     group(m, 1),
		RequestedPath: group(m, 2),
		RefererURL:    normalizeReferer(group(m, 3)),
	}, nil
}

func group(m *regexp2.Match, n int) string {
	g := m.GroupByNumber(n)
	if g == nil {
		return ""
	}
	return g.String()
}

func normalizeReferer(ref string) string {
	ref = strings.Trim(strings.TrimSpace(ref), `"`)
	if ref == noReferer {
		return ""
	}
	return ref
}
