// Package smali rewrites decompiled bytecode-source files so that every call
// to a boolean check returns false.
package smali

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

const (
	// Extension of decompiled bytecode-source files
	Extension = ".smali"

	// DefaultMarker is appended to a rewritten result capture. Its presence
	// is what makes Apply idempotent.
	DefaultMarker = " # patched"

	insertedMarker = " # patch"
)

// Call forms that arm a result capture. The /range variants match too.
var invokeForms = []string{"invoke-virtual", "invoke-static", "invoke-direct"}

var moveResultRe = regexp.MustCompile(`move-result(?:-wide|-object)?\s+([vp])(\d+)`)

// Patcher forces the result of Symbol to false at every call site
type Patcher struct {
	Symbol string
	Marker string
}

// NewPatcher creates a patcher for the given method name
func NewPatcher(symbol string) *Patcher {
	return &Patcher{
		Symbol: symbol,
		Marker: DefaultMarker,
	}
}

// PatchBytes rewrites src and returns the new content with the number of
// call sites patched. Lines other than the rewritten captures and the
// inserted constants are returned byte-identical.
func (p *Patcher) PatchBytes(src []byte) ([]byte, int) {
	lines := strings.Split(string(src), "\n")
	out := make([]string, 0, len(lines)+4)
	pending := false
	patched := 0

	for _, line := range lines {
		body, eol := splitEOL(line)

		switch {
		case p.isTargetCall(body):
			out = append(out, line)
			pending = true

		case pending && strings.Contains(body, "move-result"):
			pending = false
			if strings.Contains(body, p.Marker) {
				out = append(out, line)
				continue
			}

			reg, ok := resultRegister(body)
			if !ok {
				out = append(out, line)
				continue
			}

			indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]
			out = append(out, body+p.Marker+eol)
			out = append(out, indent+constFalse(reg)+insertedMarker+eol)
			patched++

		default:
			out = append(out, line)
		}
	}

	if patched == 0 {
		return src, 0
	}
	return []byte(strings.Join(out, "\n")), patched
}

// Apply rewrites the file at path in place and returns the number of call
// sites patched. The file is only written when something changed.
func (p *Patcher) Apply(path string) (int, error) {
	if err := checkPath(path); err != nil {
		return 0, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return 0, perrors.NewFileSystemError("SMALI_READ", "failed to read "+path, err)
	}

	out, n := p.PatchBytes(src)
	if n == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, perrors.NewFileSystemError("SMALI_STAT", "failed to stat "+path, err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return 0, perrors.NewFileSystemError("SMALI_WRITE", "failed to write "+path, err)
	}
	return n, nil
}

// Mentions reports whether src references the target symbol at all
func (p *Patcher) Mentions(src []byte) bool {
	return bytes.Contains(src, []byte(p.Symbol))
}

func (p *Patcher) isTargetCall(line string) bool {
	if !strings.Contains(line, p.Symbol) {
		return false
	}
	for _, form := range invokeForms {
		if strings.Contains(line, form) {
			return true
		}
	}
	return false
}

func checkPath(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return perrors.NewFileNotFoundError(path)
		}
		return perrors.NewFileSystemError("SMALI_STAT", "failed to stat "+path, err)
	}
	if filepath.Ext(path) != Extension {
		return perrors.NewFormatError(path, "smali")
	}
	return nil
}

// resultRegister extracts the destination of a move-result instruction
func resultRegister(line string) (string, bool) {
	m := moveResultRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1] + m[2], true
}

// constFalse picks const/4 when the register fits in four bits. Parameter
// registers are aliased to the top of the frame, so they always get const/16.
func constFalse(reg string) string {
	if reg[0] == 'v' {
		if n, err := strconv.Atoi(reg[1:]); err == nil && n < 16 {
			return "const/4 " + reg + ", 0x0"
		}
	}
	return "const/16 " + reg + ", 0x0"
}

func splitEOL(line string) (string, string) {
	if strings.HasSuffix(line, "\r") {
		return line[:len(line)-1], "\r"
	}
	return line, ""
}
