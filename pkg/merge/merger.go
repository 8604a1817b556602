// Package merge folds decompiled split packages into the decompiled base
// package: split-only files, res/values entries and the doNotCompress list.
package merge

import (
	"os"
	"path/filepath"
	"sort"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/project"
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

// FileRecord names a file relative to a tree
type FileRecord struct {
	Source string `json:"source"`
	Path   string `json:"path"`
}

// Result collects everything a merge reports
type Result struct {
	Conflicts      []Conflict   `json:"conflicts"`
	AddedEntries   int          `json:"added_entries"`
	AddedFiles     []FileRecord `json:"added_files"`
	FileConflicts  []FileRecord `json:"file_conflicts"`
	CreatedFiles   []FileRecord `json:"created_files"`
	MissingTargets []FileRecord `json:"missing_targets"`
	DoNotCompress  []string     `json:"do_not_compress"`
}

// Merger merges source trees into a target tree
type Merger struct {
	Policy  MissingTargetPolicy
	Overlay bool
	logger  utils.Logger
}

const apktoolVersionKey = "version"

// NewMerger creates a merger
func NewMerger(policy MissingTargetPolicy, overlay bool, logger utils.Logger) *Merger {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Merger{Policy: policy, Overlay: overlay, logger: logger}
}

// Merge folds every source into target. It never removes anything from the
// target; on a name clash the target's definition wins.
func (m *Merger) Merge(target *project.Tree, sources []*project.Tree) (*Result, error) {
	res := &Result{}

	if m.Overlay {
		for _, src := range sources {
			m.logger.Info("Copying files from %s to %s", src.Name, target.Name)
			ov, err := overlay(target, src)
			if err != nil {
				return nil, err
			}
			for _, p := range ov.added {
				res.AddedFiles = append(res.AddedFiles, FileRecord{Source: src.Name, Path: p})
			}
			for _, p := range ov.conflicts {
				res.FileConflicts = append(res.FileConflicts, FileRecord{Source: src.Name, Path: p})
			}
		}
	}

	dnc, err := m.MergeDoNotCompress(target, sources)
	if err != nil {
		return nil, err
	}
	res.DoNotCompress = dnc

	for _, src := range sources {
		if err := m.mergeValues(target, src, res); err != nil {
			return nil, err
		}
	}

	sortRecords(res.AddedFiles)
	sortRecords(res.FileConflicts)
	return res, nil
}

// MergeDoNotCompress unions the sources' doNotCompress lists into the
// target's descriptor and returns the merged list.
func (m *Merger) MergeDoNotCompress(target *project.Tree, sources []*project.Tree) ([]string, error) {
	desc, err := target.ReadDescriptor()
	if err != nil {
		return nil, err
	}

	lists := [][]string{desc.DoNotCompress()}
	for _, src := range sources {
		sd, err := src.ReadDescriptor()
		if err != nil {
			return nil, err
		}
		if v, want := sd.String(apktoolVersionKey), desc.String(apktoolVersionKey); v != want {
			m.logger.Warn("%s was decoded by apktool %q, %s by %q", src.Name, v, target.Name, want)
		}
		lists = append(lists, sd.DoNotCompress())
	}

	merged := UnionDoNotCompress(lists...)
	desc.SetDoNotCompress(merged)
	if err := desc.Save(); err != nil {
		return nil, err
	}
	m.logger.Debug("doNotCompress: %v", merged)
	return merged, nil
}

// MergeValues merges the res/values files of one source into target
func (m *Merger) MergeValues(target, src *project.Tree) (*Result, error) {
	res := &Result{}
	if err := m.mergeValues(target, src, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Merger) mergeValues(target, src *project.Tree, res *Result) error {
	files, err := src.ValuesFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		m.logger.Debug("Values not found in %s", src.Name)
		return nil
	}

	for _, name := range files {
		srcPath := filepath.Join(src.ValuesDir(), name)
		dstPath := filepath.Join(target.ValuesDir(), name)
		rel := filepath.ToSlash(filepath.Join("res", project.ValuesDirName, name))

		if _, err := os.Stat(dstPath); err != nil {
			if !os.IsNotExist(err) {
				return perrors.NewFileSystemError("VALUES_STAT", "failed to stat "+dstPath, err)
			}
			record := FileRecord{Source: src.Name, Path: rel}
			if m.Policy == CreateMissing {
				if err := copyFile(dstPath, srcPath); err != nil {
					return err
				}
				res.CreatedFiles = append(res.CreatedFiles, record)
			} else {
				m.logger.Warn("%s has %s but %s does not; skipping", src.Name, rel, target.Name)
				res.MissingTargets = append(res.MissingTargets, record)
			}
			continue
		}

		vr, err := mergeValuesFile(dstPath, srcPath, src.Name)
		if err != nil {
			return err
		}
		res.AddedEntries += vr.added
		for _, c := range vr.conflicts {
			m.logger.Warn("Value %s (%s) already exists in %s with a different id", c.Name, c.Type, target.Name)
		}
		res.Conflicts = append(res.Conflicts, vr.conflicts...)
	}
	return nil
}

func sortRecords(records []FileRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Source != records[j].Source {
			return records[i].Source < records[j].Source
		}
		return records[i].Path < records[j].Path
	})
}
