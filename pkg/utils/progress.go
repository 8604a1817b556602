package utils

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// StageProgress renders pipeline stage transitions as a step counter with a
// bar, one line per stage.
type StageProgress struct {
	out       io.Writer
	width     int
	startTime time.Time
	stageTime time.Time
	completed []string
}

// NewStageProgress creates a progress display writing to out
func NewStageProgress(out io.Writer) *StageProgress {
	return &StageProgress{
		out:       out,
		width:     28,
		startTime: time.Now(),
	}
}

// StageStarted prints the header line for a stage. index is 1-based.
func (sp *StageProgress) StageStarted(stage string, index, total int) {
	sp.stageTime = time.Now()
	filled := 0
	if total > 0 {
		filled = sp.width * (index - 1) / total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", sp.width-filled)
	fmt.Fprintf(sp.out, "[%s] %2d/%-2d %s ...\n", bar, index, total, stage)
}

// StageFinished prints the outcome of a stage
func (sp *StageProgress) StageFinished(stage string, err error) {
	elapsed := time.Since(sp.stageTime).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(sp.out, "    %s failed after %v\n", stage, elapsed)
		return
	}
	sp.completed = append(sp.completed, stage)
	fmt.Fprintf(sp.out, "    %s done (%v)\n", stage, elapsed)
}

// Completed returns the stages finished so far
func (sp *StageProgress) Completed() []string {
	return append([]string(nil), sp.completed...)
}

// Finish prints the total elapsed time
func (sp *StageProgress) Finish() {
	fmt.Fprintf(sp.out, "Total time: %v\n", time.Since(sp.startTime).Round(time.Millisecond))
}
