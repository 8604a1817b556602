package inspect

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

func writeZip(t *testing.T, path string, entries map[string]string) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for n, content := range entries {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestInspectBundle(t *testing.T) {
	path := writeZip(t, filepath.Join(t.TempDir(), "app.xapk"), map[string]string{
		"manifest.json": `{
			"package_name": "com.example.app",
			"name": "Example",
			"version_code": 42,
			"version_name": "1.2.0",
			"min_sdk_version": "24",
			"target_sdk_version": 34,
			"split_apks": [
				{"file": "com.example.app.apk", "id": "base"},
				{"file": "config.arm64_v8a.apk", "id": "config.arm64_v8a"},
				{"file": "config.xxhdpi.apk", "id": "config.xxhdpi"},
				{"file": "config.en.apk", "id": "config.en"}
			]
		}`,
	})

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, &Info{
		Type:          TypeXAPK,
		PackageName:   "com.example.app",
		AppName:       "Example",
		VersionName:   "1.2.0",
		VersionCode:   "42",
		MinSDK:        "24",
		TargetSDK:     "34",
		Architectures: []string{"arm64-v8a"},
		Densities:     []string{"xxhdpi"},
		Splits:        []string{"base", "config.arm64_v8a", "config.xxhdpi", "config.en"},
	}, info)
}

func TestInspectRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := Inspect(filepath.Join(dir, "missing.apk"))
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeFileNotFound))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0644))
	_, err = Inspect(txt)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeFormat))

	broken := writeZip(t, filepath.Join(dir, "broken.apk"), map[string]string{"classes.dex": "x"})
	_, err = Inspect(broken)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeFormat))
}

func TestScanEntries(t *testing.T) {
	abis, densities := scanEntries([]string{
		"lib/arm64-v8a/libapp.so",
		"lib/x86_64/libapp.so",
		"lib/arm64-v8a/libother.so",
		"res/drawable-xxhdpi-v4/icon.png",
		"res/mipmap-anydpi-v26/ic_launcher.xml",
		"res/values-en/strings.xml",
		"res/layout/main.xml",
		"AndroidManifest.xml",
	})
	assert.Equal(t, []string{"arm64-v8a", "x86_64"}, abis)
	assert.Equal(t, []string{"anydpi", "xxhdpi"}, densities)
}

func TestGitHubOutput(t *testing.T) {
	info := &Info{
		Type:          TypeAPK,
		PackageName:   "com.example.app",
		AppName:       "Example",
		VersionName:   "1.2.0",
		VersionCode:   "42",
		MinSDK:        "24",
		TargetSDK:     "34",
		Architectures: []string{"arm64-v8a", "x86_64"},
	}

	out := info.GitHubOutput()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 9)
	assert.Contains(t, lines, "apk_package_name=com.example.app")
	assert.Contains(t, lines, "apk_architectures=arm64-v8a,x86_64")
	assert.Contains(t, lines, "apk_densities=")
	assert.Contains(t, lines, "apk_type=APK")

	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, []byte("previous=1\n"), 0644))
	require.NoError(t, info.AppendGitHubOutput(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous=1\n"+out, string(data))
}
