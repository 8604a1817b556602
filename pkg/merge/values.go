package merge

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/project"
)

// MissingTargetPolicy decides what happens to a source values file the
// target does not have.
type MissingTargetPolicy int

const (
	// SkipMissing leaves the file out and records it
	SkipMissing MissingTargetPolicy = iota
	// CreateMissing copies the source file into the target
	CreateMissing
)

// ParsePolicy converts a config value into a MissingTargetPolicy
func ParsePolicy(s string) (MissingTargetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return SkipMissing, nil
	case "create":
		return CreateMissing, nil
	}
	return SkipMissing, perrors.NewConfigurationError("MERGE_POLICY", "unknown missing-target policy "+s)
}

func (p MissingTargetPolicy) String() string {
	if p == CreateMissing {
		return "create"
	}
	return "skip"
}

// Conflict is a resource defined by both trees under different identifiers.
// The target's definition is kept.
type Conflict struct {
	File     string            `json:"file"`
	Source   string            `json:"source"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Existing map[string]string `json:"existing"`
	Incoming map[string]string `json:"incoming"`
}

// entryKey identifies a resource value within one file
type entryKey struct {
	name string
	typ  string
}

func keyOf(el *etree.Element) (entryKey, bool) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return entryKey{}, false
	}
	typ := el.SelectAttrValue("type", "")
	if typ == "" {
		typ = el.Tag
	}
	return entryKey{name: name, typ: typ}, true
}

func identifier(el *etree.Element) string {
	return el.SelectAttrValue("id", "")
}

func hasIdentifier(entries []*etree.Element, id string) bool {
	for _, e := range entries {
		if identifier(e) == id {
			return true
		}
	}
	return false
}

func attrMap(el *etree.Element) map[string]string {
	m := make(map[string]string, len(el.Attr))
	for _, a := range el.Attr {
		m[a.FullKey()] = a.Value
	}
	return m
}

// valuesResult is the outcome of merging one values file
type valuesResult struct {
	added     int
	conflicts []Conflict
}

// mergeValuesFile folds every entry of srcPath into dstPath. Entries already
// present under the same identifier are skipped; entries present under a
// different identifier are reported and skipped. The target is only
// rewritten when something was appended.
func mergeValuesFile(dstPath, srcPath, sourceName string) (*valuesResult, error) {
	dst, err := project.ReadXML(dstPath)
	if err != nil {
		return nil, err
	}
	src, err := project.ReadXML(srcPath)
	if err != nil {
		return nil, err
	}

	dstRoot := dst.Root()
	index := make(map[entryKey][]*etree.Element)
	for _, el := range dstRoot.ChildElements() {
		if k, ok := keyOf(el); ok {
			index[k] = append(index[k], el)
		}
	}

	res := &valuesResult{}
	file := filepath.Base(dstPath)
	for _, el := range src.Root().ChildElements() {
		k, ok := keyOf(el)
		if !ok {
			continue
		}

		existing := index[k]
		if len(existing) == 0 {
			cp := el.Copy()
			appendEntry(dstRoot, cp)
			index[k] = append(index[k], cp)
			res.added++
			continue
		}

		if hasIdentifier(existing, identifier(el)) {
			continue
		}
		res.conflicts = append(res.conflicts, Conflict{
			File:     file,
			Source:   sourceName,
			Name:     k.name,
			Type:     k.typ,
			Existing: attrMap(existing[0]),
			Incoming: attrMap(el),
		})
	}

	if res.added > 0 {
		if err := project.WriteXML(dst, dstPath); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// appendEntry adds el as the last element of root, keeping the indentation
// used by the decoder.
func appendEntry(root *etree.Element, el *etree.Element) {
	n := len(root.Child)
	if n > 0 {
		if cd, ok := root.Child[n-1].(*etree.CharData); ok && strings.TrimSpace(cd.Data) == "" {
			root.InsertChildAt(n-1, etree.NewText("\n    "))
			root.InsertChildAt(n, el)
			return
		}
	}
	root.AddChild(etree.NewText("\n    "))
	root.AddChild(el)
	root.AddChild(etree.NewText("\n"))
}

// copyFile copies a values file verbatim, creating the target directory
func copyFile(dst, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return perrors.NewFileSystemError("VALUES_READ", "failed to read "+src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return perrors.NewFileSystemError("VALUES_MKDIR", "failed to create "+filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return perrors.NewFileSystemError("VALUES_WRITE", "failed to write "+dst, err)
	}
	return nil
}
