package pipeline

import (
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

// Observer is told about every stage transition
type Observer interface {
	StageStarted(stage Stage, index, total int)
	StageFinished(stage Stage, err error)
}

type nopObserver struct{}

func (nopObserver) StageStarted(Stage, int, int) {}
func (nopObserver) StageFinished(Stage, error)   {}

// progressObserver draws stages with a StageProgress
type progressObserver struct {
	progress *utils.StageProgress
	label    func(Stage) string
}

// NewProgressObserver renders stage transitions on a progress display.
// label translates stage names for display and may be nil.
func NewProgressObserver(progress *utils.StageProgress, label func(Stage) string) Observer {
	if label == nil {
		label = func(s Stage) string { return string(s) }
	}
	return &progressObserver{progress: progress, label: label}
}

func (o *progressObserver) StageStarted(stage Stage, index, total int) {
	o.progress.StageStarted(o.label(stage), index, total)
}

func (o *progressObserver) StageFinished(stage Stage, err error) {
	o.progress.StageFinished(o.label(stage), err)
}
