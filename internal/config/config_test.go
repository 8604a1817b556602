package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xapk-patcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
work_root: /tmp/xw
tools:
  apktool_jar: /opt/apktool.jar
signing:
  key_alias: release
merge:
  missing_target: create
align:
  page_size: 16
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/xw", cfg.WorkRoot)
	assert.Equal(t, "/opt/apktool.jar", cfg.Tools.ApktoolJar)
	assert.Equal(t, "release", cfg.Signing.KeyAlias)
	assert.Equal(t, MissingTargetCreate, cfg.Merge.MissingTarget)
	assert.Equal(t, 16, cfg.Align.PageSize)

	// Untouched keys keep their defaults
	assert.Equal(t, "zipalign", cfg.Tools.Zipalign)
	assert.Equal(t, "keystore.jks", cfg.Signing.Keystore)
	assert.True(t, cfg.Merge.OverlayFiles)
	assert.Equal(t, "isFromMockProvider", cfg.Patch.TargetSymbol)
}

func TestLoadEnvironment(t *testing.T) {
	path := writeConfig(t, "work_root: from-file\n")
	t.Setenv("XAPKPATCH_SIGNING_KEYSTORE_PASSWORD", "s3cret")
	t.Setenv("XAPKPATCH_WORK_ROOT", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Signing.KeystorePassword)
	assert.Equal(t, "from-env", cfg.WorkRoot)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"policy", "merge:\n  missing_target: merge\n", "MERGE_POLICY"},
		{"resource mode", "decode:\n  resource_mode: drop\n", "RESOURCE_MODE"},
		{"page size", "align:\n  page_size: 0\n", "ALIGN_PAGE_SIZE"},
		{"symbol", "patch:\n  target_symbol: \" \"\n", "PATCH_SYMBOL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			pe, ok := perrors.As(err)
			require.True(t, ok)
			assert.Equal(t, perrors.ErrorTypeConfiguration, pe.Type)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeConfiguration))
}

func TestTemplateLoadsToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.yaml")
	require.NoError(t, SaveTemplate(path))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.WorkRoot, cfg.WorkRoot)
	assert.Equal(t, want.Tools, cfg.Tools)
	assert.Equal(t, want.Merge, cfg.Merge)
	assert.Equal(t, want.Decode, cfg.Decode)
	assert.Equal(t, want.Align, cfg.Align)
}

func TestDefaultIsACopy(t *testing.T) {
	cfg := Default()
	cfg.WorkRoot = "changed"
	assert.Equal(t, "xapk-work", Default().WorkRoot)
}
