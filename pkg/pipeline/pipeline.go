// Package pipeline drives a package or bundle from input file to signed,
// aligned output through a fixed sequence of stages.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otiai10/copy"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/bundle"
	"github.com/huanfeng/xapk-patcher/pkg/manifest"
	"github.com/huanfeng/xapk-patcher/pkg/merge"
	"github.com/huanfeng/xapk-patcher/pkg/models"
	"github.com/huanfeng/xapk-patcher/pkg/project"
	"github.com/huanfeng/xapk-patcher/pkg/smali"
	"github.com/huanfeng/xapk-patcher/pkg/toolchain"
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

const apkExtension = ".apk"

// StageRecord is the outcome of one stage
type StageRecord struct {
	Stage    Stage         `json:"stage"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result describes a finished or failed run
type Result struct {
	RunID      string           `json:"run_id"`
	Flow       Flow             `json:"flow"`
	Input      string           `json:"input"`
	Output     string           `json:"output"`
	Stages     []StageRecord    `json:"stages"`
	Merge      *merge.Result    `json:"merge,omitempty"`
	Patches    *smali.Report    `json:"patches,omitempty"`
	Manifest   *manifest.Result `json:"manifest,omitempty"`
	Duration   time.Duration    `json:"duration"`
	ReportPath string           `json:"report_path,omitempty"`
}

// Pipeline runs the build state machine. One pipeline owns its work root
// for the duration of a run.
type Pipeline struct {
	cfg      models.Config
	tools    *toolchain.Toolchain
	layout   Layout
	logger   utils.Logger
	observer Observer
	reporter *perrors.ErrorReporter
	newID    func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(logger utils.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithObserver sets the stage observer
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New creates a pipeline working below cfg.WorkRoot
func New(cfg models.Config, tools *toolchain.Toolchain, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		tools:    tools,
		layout:   Layout{Root: cfg.WorkRoot},
		logger:   utils.NopLogger(),
		observer: nopObserver{},
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.reporter = perrors.NewErrorReporter(p.layout.Reports(), p.logger)
	return p
}

// Layout returns the work root layout
func (p *Pipeline) Layout() Layout {
	return p.layout
}

// run is the state threaded through the stages of one invocation
type run struct {
	id       string
	input    string
	output   string
	name     string
	bundle   *models.Bundle
	base     *project.Tree
	splits   []*project.Tree
	artifact string
	result   *Result
	logger   utils.Logger
}

type step struct {
	stage Stage
	fn    stepFunc
}

// Run patches input and places the result at output. An .apk takes the
// single flow; an .xapk or .apkm takes the split flow.
func (p *Pipeline) Run(ctx context.Context, input, output string) (*Result, error) {
	flow, err := p.check(input, output)
	if err != nil {
		return nil, err
	}
	if err := p.tools.Preflight(); err != nil {
		return nil, err
	}

	r := &run{
		id:     p.newID(),
		input:  input,
		output: output,
		name:   strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)),
	}
	r.result = &Result{RunID: r.id, Flow: flow, Input: input}
	r.logger = p.logger.WithField("run", r.id)

	r.logger.Info("Starting %s flow for %s", flow, input)
	if err := p.layout.Reset(); err != nil {
		return r.result, err
	}

	steps := p.steps(flow)

	start := time.Now()
	err = p.execute(ctx, r, steps)
	r.result.Duration = time.Since(start)
	if err != nil {
		p.report(r, err)
		return r.result, err
	}

	if err := placeOutput(r.artifact, output, r.id); err != nil {
		p.report(r, err)
		return r.result, err
	}
	r.result.Output = output
	r.logger.Info("Wrote %s in %s", output, r.result.Duration.Round(time.Millisecond))
	return r.result, nil
}

// check validates the input and output paths before any work starts
func (p *Pipeline) check(input, output string) (Flow, error) {
	info, err := os.Stat(input)
	if err != nil || info.IsDir() {
		return "", perrors.NewFileNotFoundError(input)
	}

	var flow Flow
	switch {
	case bundle.IsBundle(input):
		flow = FlowSplit
	case strings.EqualFold(filepath.Ext(input), apkExtension):
		flow = FlowSingle
	default:
		return "", perrors.NewFormatError(input, ".apk, .xapk or .apkm")
	}

	if output == "" {
		return "", perrors.NewPreconditionError("OUTPUT_MISSING", "no output path given")
	}
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return "", perrors.NewPreconditionError("OUTPUT_IS_DIR", output+" is a directory").
			WithContext("path", output)
	}
	if p.cfg.WorkRoot == "" {
		return "", perrors.NewConfigurationError("WORK_ROOT_MISSING", "work_root is not set")
	}
	return flow, nil
}

// execute runs steps in order, stopping at the first failure
func (p *Pipeline) execute(ctx context.Context, r *run, steps []step) error {
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return perrors.WrapError(err, perrors.ErrorTypeUnknown, "CANCELLED", "run cancelled").
				WithStage(string(s.stage))
		}

		p.observer.StageStarted(s.stage, i+1, len(steps))
		log := r.logger.WithField("stage", string(s.stage))
		log.Debug("Entering %s", s.stage)

		record := StageRecord{Stage: s.stage, Started: time.Now()}
		err := s.fn(ctx, r)
		record.Duration = time.Since(record.Started)

		if err != nil {
			err = tagStage(err, s.stage)
			record.Error = err.Error()
			r.result.Stages = append(r.result.Stages, record)
			p.observer.StageFinished(s.stage, err)
			log.Error("%s failed: %v", s.stage, err)
			return err
		}

		r.result.Stages = append(r.result.Stages, record)
		p.observer.StageFinished(s.stage, nil)
		log.Info("%s done in %s", s.stage, record.Duration.Round(time.Millisecond))
	}
	return nil
}

func tagStage(err error, stage Stage) error {
	if pe, ok := perrors.As(err); ok {
		return pe.WithStage(string(stage))
	}
	return perrors.WrapError(err, perrors.ErrorTypeUnknown, "STAGE_FAILED",
		fmt.Sprintf("%s failed", stage)).WithStage(string(stage))
}

// report writes the failure report and records where it went
func (p *Pipeline) report(r *run, err error) {
	var completed []string
	for _, s := range r.result.Stages {
		if s.Error == "" {
			completed = append(completed, string(s.Stage))
		}
	}
	rep := p.reporter.GenerateReport(r.id, err, &perrors.OperationContext{
		Input:           r.input,
		Output:          r.output,
		WorkRoot:        p.layout.Root,
		Duration:        r.result.Duration,
		StagesCompleted: completed,
		Intermediates:   p.layout.Intermediates(),
	})
	path, saveErr := p.reporter.SaveReport(rep)
	if saveErr != nil {
		r.logger.Warn("Failed to save error report: %v", saveErr)
		return
	}
	r.result.ReportPath = path
	r.logger.Info("Error report saved to %s", path)
}

func (p *Pipeline) decodeOptions(noSource bool) toolchain.DecodeOptions {
	return toolchain.DecodeOptions{NoSource: noSource, ResourceMode: p.cfg.Decode.ResourceMode}
}

func (p *Pipeline) buildOptions(copyOriginal bool) toolchain.BuildOptions {
	return toolchain.BuildOptions{UseAAPT2: p.cfg.Build.UseAAPT2, CopyOriginal: copyOriginal}
}

// placeOutput copies the verified artifact next to dst and renames it over
// dst, so dst is either the previous file or the complete new one.
func placeOutput(artifact, dst, runID string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return perrors.NewFileSystemError("OUTPUT_MKDIR", "failed to create "+dir, err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(dst)+"."+runID+".tmp")
	if err := copy.Copy(artifact, tmp, copy.Options{Sync: true}); err != nil {
		os.Remove(tmp)
		return perrors.NewFileSystemError("OUTPUT_COPY", "failed to copy "+artifact, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return perrors.NewFileSystemError("OUTPUT_RENAME", "failed to replace "+dst, err)
	}
	return nil
}
