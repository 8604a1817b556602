package smali

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

// Roots is anything that knows where its bytecode-source forests live
type Roots interface {
	SmaliRoots() ([]string, error)
}

// FileResult records the outcome for one file
type FileResult struct {
	Path  string `json:"path"`
	Sites int    `json:"sites"`
}

// Report summarizes a tree-wide patch run
type Report struct {
	Candidates int          `json:"candidates"` // files mentioning the symbol
	Sites      int          `json:"sites"`      // call sites rewritten
	Files      []FileResult `json:"files"`
}

// FindCandidates walks every root and returns the .smali files whose content
// mentions the target symbol, in lexical order.
func (p *Patcher) FindCandidates(src Roots) ([]string, error) {
	roots, err := src.SmaliRoots()
	if err != nil {
		return nil, err
	}

	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, Extension) {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if p.Mentions(data) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, perrors.NewFileSystemError("SMALI_WALK", "failed to scan "+root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// ApplyTree patches every candidate file below the roots
func (p *Patcher) ApplyTree(src Roots) (*Report, error) {
	files, err := p.FindCandidates(src)
	if err != nil {
		return nil, err
	}

	report := &Report{Candidates: len(files)}
	for _, file := range files {
		n, err := p.Apply(file)
		if err != nil {
			return report, err
		}
		report.Files = append(report.Files, FileResult{Path: file, Sites: n})
		report.Sites += n
	}
	return report, nil
}

// Diff returns a unified diff of what Apply would do to path, or an empty
// string when the file would not change. The file is not modified.
func (p *Patcher) Diff(path string) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return "", perrors.NewFileSystemError("SMALI_READ", "failed to read "+path, err)
	}

	out, n := p.PatchBytes(src)
	if n == 0 {
		return "", nil
	}

	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(src)),
		B:        difflib.SplitLines(string(out)),
		FromFile: "a/" + filepath.ToSlash(path),
		ToFile:   "b/" + filepath.ToSlash(path),
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(u)
}
