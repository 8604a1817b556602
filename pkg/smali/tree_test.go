package smali

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirRoots []string

func (d dirRoots) SmaliRoots() ([]string, error) { return d, nil }

func TestApplyTree(t *testing.T) {
	root := t.TempDir()
	smaliDir := filepath.Join(root, "smali", "com", "example")
	classes2 := filepath.Join(root, "smali_classes2", "com", "other")
	require.NoError(t, os.MkdirAll(smaliDir, 0755))
	require.NoError(t, os.MkdirAll(classes2, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(smaliDir, "Tracker.smali"), []byte(sample), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(smaliDir, "Plain.smali"), []byte(".class public La;\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(classes2, "Other.smali"), []byte(sample), 0644))
	// Mentions the symbol but is not bytecode source
	require.NoError(t, os.WriteFile(filepath.Join(smaliDir, "notes.txt"), []byte("isFromMockProvider"), 0644))

	roots := dirRoots{filepath.Join(root, "smali"), filepath.Join(root, "smali_classes2")}
	p := NewPatcher("isFromMockProvider")

	report, err := p.ApplyTree(roots)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Sites)

	for _, f := range report.Files {
		data, err := os.ReadFile(f.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), DefaultMarker)
	}

	again, err := p.ApplyTree(roots)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Candidates)
	assert.Zero(t, again.Sites)
}

func TestDiffDoesNotModify(t *testing.T) {
	path := writeSmali(t, sample)
	p := NewPatcher("isFromMockProvider")

	diff, err := p.Diff(path)
	require.NoError(t, err)
	assert.Contains(t, diff, "-    move-result v0\n")
	assert.Contains(t, diff, "+    move-result v0 # patched\n")
	assert.Contains(t, diff, "+    const/4 v0, 0x0 # patch\n")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sample, string(data))

	_, err = p.Apply(path)
	require.NoError(t, err)
	diff, err = p.Diff(path)
	require.NoError(t, err)
	assert.Empty(t, diff)
}
