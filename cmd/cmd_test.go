package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackerSmali = `.class public Lcom/example/Tracker;
.super Ljava/lang/Object;

.method public check(Landroid/location/Location;)Z
    .locals 1

    invoke-virtual {p1}, Landroid/location/Location;->isFromMockProvider()Z

    move-result v0

    return v0
.end method
`

// execute runs the root command with args and returns what it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	smaliDryRun, smaliSymbol = false, ""
	mergeJSON, infoJSON = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--lang", "en", "--work-dir", t.TempDir(), "--config", writeTestConfig(t)}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xapk-patcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0644))
	return path
}

func decodedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "smali", "com", "example")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Tracker.smali"), []byte(trackerSmali), 0644))
	return root
}

func TestSmaliDryRunLeavesFiles(t *testing.T) {
	root := decodedTree(t)
	file := filepath.Join(root, "smali", "com", "example", "Tracker.smali")

	out, err := execute(t, "smali", root, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "+    const/4 v0, 0x0 # patch")
	assert.Contains(t, out, "1 file mentions isFromMockProvider")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, trackerSmali, string(data))
}

func TestSmaliAppliesOnce(t *testing.T) {
	root := decodedTree(t)

	out, err := execute(t, "smali", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Patched 1 call sites in 1 files")

	out, err = execute(t, "smali", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Patched 0 call sites in 1 files")
}

func TestMergeJSON(t *testing.T) {
	target, source := t.TempDir(), t.TempDir()
	for _, dir := range []string{target, source} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "res", "values"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "apktool.yml"), []byte("version: 2.9.3\n"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(target, "res", "values", "public.xml"),
		[]byte(`<?xml version="1.0" encoding="utf-8"?>
<resources>
    <public type="string" name="app_name" id="0x7f010000" />
</resources>
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "res", "values", "public.xml"),
		[]byte(`<?xml version="1.0" encoding="utf-8"?>
<resources>
    <public type="string" name="greeting" id="0x7f010001" />
</resources>
`), 0644))

	out, err := execute(t, "merge", target, source, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"added_entries": 1`)

	data, err := os.ReadFile(filepath.Join(target, "res", "values", "public.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "greeting")
}

func TestMergeListsFiles(t *testing.T) {
	target, source := t.TempDir(), t.TempDir()
	for _, dir := range []string{target, source} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "apktool.yml"), []byte("version: 2.9.3\n"), 0644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "res", "drawable"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "res", "drawable", "icon.png"), []byte(dir), 0644))
	}
	lib := filepath.Join(source, "lib", "arm64-v8a")
	require.NoError(t, os.MkdirAll(lib, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "libnative.so"), []byte("elf"), 0644))

	out, err := execute(t, "merge", target, source)
	require.NoError(t, err)
	assert.Contains(t, out, "Added lib/arm64-v8a/libnative.so from "+filepath.Base(source))
	assert.Contains(t, out, "Kept the base copy of res/drawable/icon.png")
	assert.FileExists(t, filepath.Join(target, "lib", "arm64-v8a", "libnative.so"))
}

func TestMergeNeedsTwoTrees(t *testing.T) {
	_, err := execute(t, "merge", t.TempDir())
	assert.Error(t, err)
}

func TestPatchRejectsUnknownInput(t *testing.T) {
	input := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0644))

	_, err := execute(t, "patch", "-i", input, "-o", filepath.Join(t.TempDir(), "out.apk"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes.txt")
}

func TestDefaultOutput(t *testing.T) {
	assert.Equal(t, filepath.Join("dl", "app-patched.apk"), defaultOutput(filepath.Join("dl", "app.xapk")))
}

func TestStageLabel(t *testing.T) {
	_, err := execute(t, "smali", decodedTree(t), "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "Align final package", stageLabel("AlignedFinal"))
	assert.Equal(t, "Custom", stageLabel("Custom"))
}
