// Package project models a decompiled package: the smali forests, the
// resource forest, the manifest and the apktool.yml build descriptor.
package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

const (
	ManifestName   = "AndroidManifest.xml"
	DescriptorName = "apktool.yml"
	ValuesDirName  = "values"
	DistDirName    = "dist"
)

// Tree is one decompiled package on disk
type Tree struct {
	Name string
	Dir  string
}

// Open opens an existing decompiled directory. The name defaults to the
// directory's base name.
func Open(dir string) (*Tree, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NewFileNotFoundError(dir)
		}
		return nil, perrors.NewFileSystemError("TREE_STAT", "failed to stat "+dir, err)
	}
	if !info.IsDir() {
		return nil, perrors.NewFormatError(dir, "directory")
	}
	return &Tree{Name: filepath.Base(dir), Dir: dir}, nil
}

// ManifestPath returns the decoded manifest path
func (t *Tree) ManifestPath() string {
	return filepath.Join(t.Dir, ManifestName)
}

// DescriptorPath returns the apktool.yml path
func (t *Tree) DescriptorPath() string {
	return filepath.Join(t.Dir, DescriptorName)
}

// ResDir returns the resource forest root
func (t *Tree) ResDir() string {
	return filepath.Join(t.Dir, "res")
}

// ValuesDir returns res/values
func (t *Tree) ValuesDir() string {
	return filepath.Join(t.ResDir(), ValuesDirName)
}

// DistPath returns where a build of this tree is written
func (t *Tree) DistPath(name string) string {
	return filepath.Join(t.Dir, DistDirName, name+".apk")
}

// SmaliRoots returns every top-level smali directory (smali, smali_classes2, ...)
func (t *Tree) SmaliRoots() ([]string, error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		return nil, perrors.NewFileSystemError("TREE_READ", "failed to list "+t.Dir, err)
	}

	var roots []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "smali") {
			roots = append(roots, filepath.Join(t.Dir, e.Name()))
		}
	}
	sort.Strings(roots)
	return roots, nil
}

// ValuesFiles returns the names of res/values/*.xml, sorted. A tree without
// a values directory has none.
func (t *Tree) ValuesFiles() ([]string, error) {
	entries, err := os.ReadDir(t.ValuesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perrors.NewFileSystemError("TREE_READ", "failed to list "+t.ValuesDir(), err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".xml") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// HasManifest reports whether the decoded manifest exists
func (t *Tree) HasManifest() bool {
	_, err := os.Stat(t.ManifestPath())
	return err == nil
}
