package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huanfeng/xapk-patcher/internal/config"
	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/models"
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

// recordingRunner remembers commands and creates the file following -o,
// --out or the last argument, depending on the tool.
type recordingRunner struct {
	commands []Command
	exitCode int
	err      error
	noOutput bool
}

func (r *recordingRunner) Run(_ context.Context, cmd Command) (*Result, error) {
	r.commands = append(r.commands, cmd)
	if r.err != nil {
		return nil, r.err
	}
	if r.exitCode == 0 && !r.noOutput {
		if out := outputOf(cmd.Args); out != "" {
			_ = os.MkdirAll(filepath.Dir(out), 0755)
			_ = os.WriteFile(out, []byte("out"), 0644)
		}
	}
	return &Result{Command: cmd, ExitCode: r.exitCode, Stderr: "boom"}, nil
}

func outputOf(args []string) string {
	for i, a := range args {
		if (a == "-o" || a == "--out" || a == "-keystore") && i+1 < len(args) {
			return args[i+1]
		}
	}
	if len(args) > 0 && args[0] == "-f" && len(args) == 5 {
		return args[4] // zipalign
	}
	return ""
}

func testConfig(t *testing.T) *models.Config {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Signing.Keystore = filepath.Join(dir, "keystore.jks")
	cfg.Signing.KeystorePassword = "secret"
	return &cfg
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

func TestDecodeArguments(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	apk := touch(t, filepath.Join(dir, "base.apk"))
	out := filepath.Join(dir, "decoded")

	tests := []struct {
		name string
		jar  string
		opts DecodeOptions
		want Command
	}{
		{
			name: "wrapper with resource mode",
			opts: DecodeOptions{ResourceMode: "keep"},
			want: Command{Name: "apktool", Args: []string{"-f", "d", apk, "-o", out, "--resource-mode", "keep"}},
		},
		{
			name: "jar without sources",
			jar:  "/opt/apktool.jar",
			opts: DecodeOptions{NoSource: true, ResourceMode: "remove"},
			want: Command{Name: "java", Args: []string{"-jar", "/opt/apktool.jar", "-f", "d", apk, "-o", out, "--no-src"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			c.Tools.ApktoolJar = tt.jar
			r := &recordingRunner{}
			_, err := New(&c, r, nil).Decode(context.Background(), apk, out, tt.opts)
			require.NoError(t, err)
			require.Len(t, r.commands, 1)
			assert.Equal(t, tt.want, r.commands[0])
		})
	}
}

func TestBuildAlignSignVerify(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	project := filepath.Join(dir, "com.example.app")
	require.NoError(t, os.MkdirAll(project, 0755))
	r := &recordingRunner{}
	tc := New(cfg, r, nil)
	ctx := context.Background()

	built := filepath.Join(project, "dist", "com.example.app.apk")
	_, err := tc.Build(ctx, project, built, BuildOptions{UseAAPT2: true, CopyOriginal: true})
	require.NoError(t, err)

	aligned := filepath.Join(dir, "aligned.apk")
	_, err = tc.Align(ctx, built, aligned)
	require.NoError(t, err)

	signed := filepath.Join(dir, "signed.apk")
	_, err = tc.Sign(ctx, aligned, signed)
	require.NoError(t, err)

	_, err = tc.Verify(ctx, signed)
	require.NoError(t, err)

	require.Len(t, r.commands, 4)
	assert.Equal(t, []string{"b", project, "-o", built, "--use-aapt2", "--copy-original"}, r.commands[0].Args)
	assert.Equal(t, Command{Name: "zipalign", Args: []string{"-f", "-v", "4", built, aligned}}, r.commands[1])
	assert.Equal(t, Command{Name: "apksigner", Args: []string{"sign",
		"--ks", cfg.Signing.Keystore, "--ks-pass", "pass:secret", "--ks-key-alias", "key",
		"--out", signed, aligned}}, r.commands[2])
	assert.Equal(t, []string{"verify", "-v", signed}, r.commands[3].Args)
}

func TestNonZeroExitIsExternalToolError(t *testing.T) {
	cfg := testConfig(t)
	apk := touch(t, filepath.Join(t.TempDir(), "in.apk"))
	r := &recordingRunner{exitCode: 2}

	res, err := New(cfg, r, nil).Sign(context.Background(), apk, filepath.Join(t.TempDir(), "out.apk"))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.ExitCode)

	pe, ok := perrors.As(err)
	require.True(t, ok)
	assert.Equal(t, perrors.ErrorTypeExternalTool, pe.Type)
	assert.Equal(t, "apksigner", pe.Context["tool"])
	assert.Equal(t, "boom", pe.Context["output"])
	assert.NotContains(t, pe.Context["command"], "secret")
}

func TestMissingArtifactIsStructuralError(t *testing.T) {
	cfg := testConfig(t)
	apk := touch(t, filepath.Join(t.TempDir(), "in.apk"))

	_, err := New(cfg, &recordingRunner{noOutput: true}, nil).Align(context.Background(), apk, filepath.Join(t.TempDir(), "out.apk"))
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeStructuralAssumption))
}

func TestStartFailure(t *testing.T) {
	cfg := testConfig(t)
	apk := touch(t, filepath.Join(t.TempDir(), "in.apk"))

	_, err := New(cfg, &recordingRunner{err: errors.New("exec: not found")}, nil).Verify(context.Background(), apk)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeExternalTool))
}

func TestInputPreconditions(t *testing.T) {
	cfg := testConfig(t)
	r := &recordingRunner{}
	tc := New(cfg, r, nil)
	dir := t.TempDir()

	_, err := tc.Decode(context.Background(), filepath.Join(dir, "missing.apk"), dir, DecodeOptions{})
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeFileNotFound))

	zip := touch(t, filepath.Join(dir, "bundle.zip"))
	_, err = tc.Align(context.Background(), zip, filepath.Join(dir, "out.apk"))
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeFormat))

	_, err = tc.Build(context.Background(), filepath.Join(dir, "nope"), filepath.Join(dir, "out.apk"), BuildOptions{})
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeFileNotFound))

	assert.Empty(t, r.commands)
}

func TestGenerateKeystore(t *testing.T) {
	cfg := testConfig(t)
	r := &recordingRunner{}
	tc := New(cfg, r, nil)

	_, err := tc.GenerateKeystore(context.Background())
	require.NoError(t, err)
	require.Len(t, r.commands, 1)
	assert.Equal(t, "keytool", r.commands[0].Name)
	assert.Contains(t, r.commands[0].Args, "-genkeypair")
	assert.Contains(t, r.commands[0].Args, cfg.Signing.DName)

	_, err = tc.GenerateKeystore(context.Background())
	assert.True(t, perrors.IsType(err, perrors.ErrorTypePrecondition))
	assert.Len(t, r.commands, 1)
}

func TestPreflight(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	cfg.Tools.Apktool = touch(t, filepath.Join(dir, "bin", "apktool"))
	cfg.Tools.Zipalign = touch(t, filepath.Join(dir, "bin", "zipalign"))
	cfg.Tools.Apksigner = filepath.Join(dir, "bin", "apksigner")

	tc := New(cfg, &recordingRunner{}, nil)
	err := tc.Preflight()
	require.Error(t, err)
	pe, ok := perrors.As(err)
	require.True(t, ok)
	assert.Equal(t, perrors.ErrorTypePrecondition, pe.Type)
	assert.Contains(t, pe.Message, "apksigner")
	assert.Contains(t, pe.Message, "keystore")
	assert.NotContains(t, pe.Message, "zipalign")

	touch(t, cfg.Tools.Apksigner)
	touch(t, cfg.Signing.Keystore)
	assert.NoError(t, New(cfg, &recordingRunner{}, nil).Preflight())
}

func TestPreflightBareNamesUsePath(t *testing.T) {
	cfg := testConfig(t)
	touch(t, cfg.Signing.Keystore)
	tc := New(cfg, &recordingRunner{}, nil)
	tc.lookPath = func(name string) (string, error) {
		if name == "zipalign" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	err := tc.Preflight()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipalign")
}

func TestDebugLogHidesPasswords(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}

	var buf bytes.Buffer
	logger, err := utils.NewLogger(&utils.LoggerConfig{Level: utils.LogLevelDebug, Output: &buf})
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Signing.KeystorePassword = "s3cr3t-pw"
	cfg.Tools.Apksigner = truePath
	tc := New(cfg, NewExecRunner(nil, logger), logger)

	dir := t.TempDir()
	in := touch(t, filepath.Join(dir, "aligned.apk"))
	_, _ = tc.Sign(context.Background(), in, filepath.Join(dir, "signed.apk"))

	_, err = NewExecRunner(nil, logger).Run(context.Background(), Command{
		Name: truePath,
		Args: []string{"-genkeypair", "-storepass", "s3cr3t-pw", "-keypass", "s3cr3t-pw"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "pass:***")
	assert.Contains(t, out, "-storepass ***")
	assert.NotContains(t, out, "s3cr3t-pw")
}
