package toolchain

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

// Command is one external process invocation
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
	Dir  string   `json:"dir,omitempty"`
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what an external process left behind. A non-zero ExitCode is
// not an error at this level; callers decide.
type Result struct {
	Command  Command       `json:"command"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Output returns stderr and stdout joined, trimmed
func (r *Result) Output() string {
	return strings.TrimSpace(strings.TrimSpace(r.Stderr) + "\n" + strings.TrimSpace(r.Stdout))
}

// Runner starts external processes
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec. When Stream is set, process output
// is copied to it as it is produced.
type ExecRunner struct {
	Stream io.Writer
	logger utils.Logger
}

// NewExecRunner creates a runner
func NewExecRunner(stream io.Writer, logger utils.Logger) *ExecRunner {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &ExecRunner{Stream: stream, logger: logger}
}

// Run starts cmd and waits for it. The returned error is only set when the
// process could not be started or waited for.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if r.Stream != nil {
		c.Stdout = io.MultiWriter(&stdout, r.Stream)
		c.Stderr = io.MultiWriter(&stderr, r.Stream)
	}

	r.logger.Debug("Running: %s", redact(cmd))
	start := time.Now()
	err := c.Run()
	res := &Result{
		Command:  cmd,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
