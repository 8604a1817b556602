package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/huanfeng/xapk-patcher/internal/version"
)

// ErrorReport represents a failed pipeline run
type ErrorReport struct {
	RunID       string            `json:"run_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Error       *PatchError       `json:"error"`
	Environment *EnvironmentInfo  `json:"environment"`
	Context     *OperationContext `json:"context"`
}

// EnvironmentInfo contains information about the runtime environment
type EnvironmentInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	GoVersion    string `json:"go_version"`
	Version      string `json:"version"`
}

// OperationContext describes the run that failed
type OperationContext struct {
	Input           string        `json:"input"`
	Output          string        `json:"output"`
	WorkRoot        string        `json:"work_root"`
	Duration        time.Duration `json:"duration"`
	StagesCompleted []string      `json:"stages_completed"`
	StageFailed     string        `json:"stage_failed"`
	// Intermediate directories left on disk for diagnosis
	Intermediates []string `json:"intermediates,omitempty"`
}

// ErrorReporter writes failure reports
type ErrorReporter struct {
	reportDir string
	logger    Logger
}

// Logger is the subset of the application logger the reporter needs
type Logger interface {
	Warn(msg string, args ...interface{})
}

// NewErrorReporter creates a new error reporter
func NewErrorReporter(reportDir string, logger Logger) *ErrorReporter {
	return &ErrorReporter{
		reportDir: reportDir,
		logger:    logger,
	}
}

// GenerateReport builds a report for a failed run. Errors that are not
// PatchErrors are wrapped as unknown.
func (er *ErrorReporter) GenerateReport(runID string, err error, ctx *OperationContext) *ErrorReport {
	pe, ok := As(err)
	if !ok {
		pe = WrapError(err, ErrorTypeUnknown, "UNKNOWN", "pipeline failed")
	}
	if ctx != nil && ctx.StageFailed == "" {
		ctx.StageFailed = pe.Stage
	}

	return &ErrorReport{
		RunID:     runID,
		Timestamp: time.Now(),
		Error:     pe,
		Environment: &EnvironmentInfo{
			OS:           runtime.GOOS,
			Architecture: runtime.GOARCH,
			GoVersion:    runtime.Version(),
			Version:      version.Short(),
		},
		Context: ctx,
	}
}

// SaveReport saves an error report to disk and returns its path
func (er *ErrorReporter) SaveReport(report *ErrorReport) (string, error) {
	if err := os.MkdirAll(er.reportDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := report.Timestamp.Format("20060102_150405")
	name := fmt.Sprintf("error_report_%s_%s.json", timestamp, report.RunID)
	path := filepath.Join(er.reportDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

// LoadReport reads a report written by SaveReport
func LoadReport(path string) (*ErrorReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report ErrorReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if report.Error == nil {
		return nil, fmt.Errorf("report %s has no error", path)
	}
	return &report, nil
}

// DisplayReport writes a human-readable summary of the report
func (er *ErrorReporter) DisplayReport(w io.Writer, report *ErrorReport) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "PIPELINE FAILED")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Run:  %s\n", report.RunID)
	fmt.Fprintf(w, "Time: %s\n", report.Timestamp.Format("2006-01-02 15:04:05"))

	if ctx := report.Context; ctx != nil {
		if ctx.StageFailed != "" {
			fmt.Fprintf(w, "Failed stage: %s\n", ctx.StageFailed)
		}
		if len(ctx.StagesCompleted) > 0 {
			fmt.Fprintf(w, "Completed: %s\n", strings.Join(ctx.StagesCompleted, " -> "))
		}
		if len(ctx.Intermediates) > 0 {
			fmt.Fprintln(w, "Intermediate directories kept:")
			for _, dir := range ctx.Intermediates {
				fmt.Fprintf(w, "   %s\n", dir)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, report.Error.FormatDetailed())
}
