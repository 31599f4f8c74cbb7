package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"

	"pkhunter/models"
)

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = time.Second

// PatternSet 检测规则集合
// Compiled once at startup and shared read-only by the parser, the referer
// filter and the kit prober.
type PatternSet struct {
	TrackingFile *regexp2.Regexp
	Legitimate   *regexp2.Regexp
	LogLine      *regexp2.Regexp
}

var (
	pyNamedGroup = regexp.MustCompile(`\(\?P<`)
	pyBackref    = regexp.MustCompile(`\(\?P=(\w+)\)`)
)

// translatePython rewrites the Python-only group syntax into the .NET form
// regexp2 understands.
func translatePython(expr string) string {
	expr = pyNamedGroup.ReplaceAllString(expr, "(?<")
	return pyBackref.ReplaceAllString(expr, `\k<$1>`)
}

func compile(name, expr string, opts regexp2.RegexOptions) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(translatePython(expr), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s pattern: %v", models.ErrConfig, name, err)
	}
	re.MatchTimeout = DefaultMatchTimeout
	return re, nil
}

// CompilePatterns compiles the DEFAULT section. log_pattern is compiled in
// verbose mode: unescaped whitespace and '#' comments are ignored.
func CompilePatterns(d DefaultConfig) (*PatternSet, error) {
	tracking, err := compile("tracking_file_request", d.TrackingFileRequest, regexp2.None)
	if err != nil {
		return nil, err
	}
	legit, err := compile("legitimate_referer", d.LegitimateReferer, regexp2.None)
	if err != nil {
		return nil, err
	}
	logLine, err := compile("log_pattern", d.LogPattern, regexp2.IgnorePatternWhitespace)
	if err != nil {
		return nil, err
	}
	// group 0 is the whole match
	if n := len(logLine.GetGroupNumbers()) - 1; n < 3 {
		return nil, fmt.Errorf("%w: log_pattern needs 3 capture groups (timestamp, request, referer), got %d",
			models.ErrConfig, n)
	}
	return &PatternSet{
		TrackingFile: tracking,
		Legitimate:   legit,
		LogLine:      logLine,
	}, nil
}

// MatchTracking reports whether s references the tracking file.
func (p *PatternSet) MatchTracking(s string) (bool, error) {
	return p.TrackingFile.MatchString(s)
}

// MatchLegitimate reports whether s belongs to an allow-listed referer.
func (p *PatternSet) MatchLegitimate(s string) (bool, error) {
	return p.Legitimate.MatchString(s)
}
