// Package manifest strips the split-package advertisement from a merged
// AndroidManifest.xml so that the rebuilt package installs on its own.
package manifest

import (
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/huanfeng/xapk-patcher/pkg/project"
)

// SplitMarkers are the attribute local names removed from every element
var SplitMarkers = []string{"isSplitRequired", "requiredSplitTypes", "splitTypes"}

// Removed is one attribute stripped from the manifest
type Removed struct {
	Element   string `json:"element"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// Result describes a sanitized manifest
type Result struct {
	Path       string            `json:"path"`
	Removed    []Removed         `json:"removed"`
	Namespaces map[string]string `json:"namespaces"`
	Redeclared []string          `json:"redeclared,omitempty"`
}

func isSplitMarker(attr etree.Attr) bool {
	if attr.Space == xmlnsPrefix || (attr.Space == "" && attr.Key == xmlnsPrefix) {
		return false
	}
	for _, m := range SplitMarkers {
		if strings.Contains(attr.Key, m) {
			return true
		}
	}
	return false
}

// Sanitize removes split markers from every element of doc, root included,
// visiting each element once in breadth-first order. Namespace bindings in
// namespaces that the root no longer declares are declared on it again.
func Sanitize(doc *etree.Document, namespaces map[string]string) []Removed {
	removed, _ := sanitize(doc, namespaces)
	return removed
}

func sanitize(doc *etree.Document, namespaces map[string]string) ([]Removed, []string) {
	root := doc.Root()
	if root == nil {
		return nil, nil
	}

	var removed []Removed
	queue := []*etree.Element{root}
	for len(queue) > 0 {
		el := queue[0]
		queue = queue[1:]

		kept := el.Attr[:0]
		for _, a := range el.Attr {
			if isSplitMarker(a) {
				removed = append(removed, Removed{Element: el.FullTag(), Attribute: a.FullKey(), Value: a.Value})
				continue
			}
			kept = append(kept, a)
		}
		el.Attr = kept

		queue = append(queue, el.ChildElements()...)
	}

	return removed, redeclare(root, namespaces)
}

// redeclare binds every prefix in namespaces on root unless root already
// declares it, and returns the prefixes it added.
func redeclare(root *etree.Element, namespaces map[string]string) []string {
	declared := make(map[string]bool)
	for _, a := range root.Attr {
		switch {
		case a.Space == xmlnsPrefix:
			declared[a.Key] = true
		case a.Space == "" && a.Key == xmlnsPrefix:
			declared[""] = true
		}
	}

	prefixes := make([]string, 0, len(namespaces))
	for p := range namespaces {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var added []string
	for _, p := range prefixes {
		if declared[p] {
			continue
		}
		key := xmlnsPrefix
		if p != "" {
			key += ":" + p
		}
		root.CreateAttr(key, namespaces[p])
		added = append(added, p)
	}
	return added
}

// SanitizeFile runs the namespace pre-scan, strips split markers and writes
// the manifest back in place.
func SanitizeFile(path string) (*Result, error) {
	ns, err := ScanNamespaces(path)
	if err != nil {
		return nil, err
	}
	doc, err := project.ReadXML(path)
	if err != nil {
		return nil, err
	}

	res := &Result{Path: path, Namespaces: ns}
	res.Removed, res.Redeclared = sanitize(doc, ns)
	if err := project.WriteXML(doc, path); err != nil {
		return nil, err
	}
	return res, nil
}
