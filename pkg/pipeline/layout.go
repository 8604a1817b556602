package pipeline

import (
	"os"
	"path/filepath"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

// Layout is the working root of a run:
//
//	<root>/extracted/           raw bundle contents and manifest.json
//	<root>/decompiled/<name>/   one project tree per package
//	<root>/build/               aligned and signed intermediates
//	<root>/reports/             failure reports, kept across runs
type Layout struct {
	Root string
}

func (l Layout) Extracted() string  { return filepath.Join(l.Root, "extracted") }
func (l Layout) Decompiled() string { return filepath.Join(l.Root, "decompiled") }
func (l Layout) Build() string      { return filepath.Join(l.Root, "build") }
func (l Layout) Reports() string    { return filepath.Join(l.Root, "reports") }

// Package returns the decode directory of one package
func (l Layout) Package(name string) string {
	return filepath.Join(l.Decompiled(), name)
}

// Artifact returns a path below build/
func (l Layout) Artifact(name string) string {
	return filepath.Join(l.Build(), name)
}

// Intermediates lists the directories a failed run leaves behind
func (l Layout) Intermediates() []string {
	var dirs []string
	for _, d := range []string{l.Extracted(), l.Decompiled(), l.Build()} {
		if _, err := os.Stat(d); err == nil {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Reset discards everything a previous run produced, except reports
func (l Layout) Reset() error {
	for _, d := range []string{l.Extracted(), l.Decompiled(), l.Build()} {
		if err := os.RemoveAll(d); err != nil {
			return perrors.NewFileSystemError("WORK_RESET", "failed to remove "+d, err)
		}
	}
	if err := os.MkdirAll(l.Build(), 0755); err != nil {
		return perrors.NewFileSystemError("WORK_MKDIR", "failed to create "+l.Build(), err)
	}
	return nil
}
