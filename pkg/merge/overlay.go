package merge

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/project"
)

// Top-level entries of a split that never reach the base by plain copying.
// The manifest, descriptor and values files have their own merge steps.
var overlayExcludedTop = map[string]bool{
	project.ManifestName:   true,
	project.DescriptorName: true,
	"original":             true,
	"build":                true,
	project.DistDirName:    true,
}

type overlayResult struct {
	added     []string
	conflicts []string
}

func overlayExcluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	top := rel
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		top = rel[:i]
	}
	if overlayExcludedTop[top] {
		return true
	}
	return filepath.ToSlash(filepath.Dir(rel)) == "res/"+project.ValuesDirName && strings.HasSuffix(rel, ".xml")
}

// overlay copies every file of src into dst without overwriting. Files that
// already exist in dst are reported as conflicts. Paths are relative to the
// tree roots, slash-separated.
func overlay(dst, src *project.Tree) (*overlayResult, error) {
	res := &overlayResult{}

	opt := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Skip },
		OnDirExists: func(string, string) copy.DirExistsAction {
			return copy.Merge
		},
		Skip: func(info os.FileInfo, from, to string) (bool, error) {
			rel, err := filepath.Rel(src.Dir, from)
			if err != nil {
				return true, err
			}
			if rel == "." {
				return false, nil
			}
			if overlayExcluded(rel) {
				return true, nil
			}
			if info.IsDir() {
				return false, nil
			}
			if _, err := os.Stat(to); err == nil {
				res.conflicts = append(res.conflicts, filepath.ToSlash(rel))
				return true, nil
			}
			res.added = append(res.added, filepath.ToSlash(rel))
			return false, nil
		},
	}

	if err := copy.Copy(src.Dir, dst.Dir, opt); err != nil {
		return nil, perrors.NewFileSystemError("OVERLAY_COPY",
			"failed to copy "+src.Name+" into "+dst.Name, err)
	}
	return res, nil
}
