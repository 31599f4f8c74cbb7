package pipeline

import (
	"fmt"

	"pkhunter/models"
)

// 流水线阶段
type stage string

const (
	stageParsing   stage = "parsing"
	stageFiltering stage = "filtering"
	stageProbing   stage = "probing"
	stageEnriching stage = "enriching"
	stageEmitting  stage = "emitting"
)

// LineError describes why a line produced no row.
type LineError struct {
	Line  int
	Stage stage
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Stage, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Stats 扫描统计
type Stats struct {
	Bytes      int64                      `json:"bytes"`
	Lines      int                        `json:"lines"`
	Matched    int                        `json:"matched"`
	Skipped    int                        `json:"skipped"` // lines not matching log_pattern
	Candidates int                        `json:"candidates"`
	Rows       int                        `json:"rows"`
	Failed     int                        `json:"failed"` // lines dropped by an unexpected error
	ByStatus   map[models.ProbeStatus]int `json:"by_status"`
}

func newStats() Stats {
	return Stats{ByStatus: make(map[models.ProbeStatus]int)}
}
