// Package toolchain drives apktool, zipalign, apksigner and keytool. Every
// invocation returns a typed result and a non-zero exit status is an error.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/models"
	"github.com/huanfeng/xapk-patcher/pkg/system"
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

const (
	apkExtension = ".apk"
	outputTail   = 20
)

// DecodeOptions controls apktool d
type DecodeOptions struct {
	NoSource     bool
	ResourceMode string
}

// BuildOptions controls apktool b
type BuildOptions struct {
	UseAAPT2     bool
	CopyOriginal bool
}

// Toolchain runs the external tools configured for one pipeline
type Toolchain struct {
	tools    models.ToolsConfig
	signing  models.SigningConfig
	pageSize int
	runner   Runner
	logger   utils.Logger
	lookPath func(string) (string, error)
}

// New creates a toolchain from the configuration record
func New(cfg *models.Config, runner Runner, logger utils.Logger) *Toolchain {
	if logger == nil {
		logger = utils.NopLogger()
	}
	if runner == nil {
		runner = NewExecRunner(nil, logger)
	}
	pageSize := cfg.Align.PageSize
	if pageSize <= 0 {
		pageSize = 4
	}
	return &Toolchain{
		tools:    cfg.Tools,
		signing:  cfg.Signing,
		pageSize: pageSize,
		runner:   runner,
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

// Resolve fills tool entries that cannot be found as configured with the
// locations discovered by the dependency manager.
func Resolve(tools models.ToolsConfig, dm system.DependencyManager) models.ToolsConfig {
	fill := func(value *string, name string) {
		if *value != "" && resolvable(*value, exec.LookPath) {
			return
		}
		if path, ok := dm.Locate(name); ok {
			*value = path
		}
	}

	fill(&tools.Java, system.ToolJava)
	if tools.ApktoolJar == "" {
		fill(&tools.Apktool, system.ToolApktool)
	}
	fill(&tools.Zipalign, system.ToolZipalign)
	fill(&tools.Apksigner, system.ToolApksigner)
	fill(&tools.Keytool, system.ToolKeytool)
	return tools
}

// resolvable reports whether a configured tool names something runnable.
// Values containing a path separator must exist; bare names go through PATH.
func resolvable(value string, lookPath func(string) (string, error)) bool {
	if strings.ContainsAny(value, `/\`) {
		info, err := os.Stat(value)
		return err == nil && !info.IsDir()
	}
	_, err := lookPath(value)
	return err == nil
}

// Preflight checks every tool the pipeline needs and the signing keystore
// before any work starts. All problems are reported in one error.
func (t *Toolchain) Preflight() error {
	var missing []string
	check := func(label, value string) {
		if value == "" || !resolvable(value, t.lookPath) {
			missing = append(missing, fmt.Sprintf("%s (%q)", label, value))
		}
	}

	if t.tools.ApktoolJar != "" {
		check("java", t.tools.Java)
		if _, err := os.Stat(t.tools.ApktoolJar); err != nil {
			missing = append(missing, fmt.Sprintf("apktool jar (%q)", t.tools.ApktoolJar))
		}
	} else {
		check("apktool", t.tools.Apktool)
	}
	check("zipalign", t.tools.Zipalign)
	check("apksigner", t.tools.Apksigner)

	if _, err := os.Stat(t.signing.Keystore); err != nil {
		missing = append(missing, fmt.Sprintf("keystore (%q)", t.signing.Keystore))
	}

	if len(missing) == 0 {
		return nil
	}
	e := perrors.NewPreconditionError("TOOLS_MISSING", "missing prerequisites: "+strings.Join(missing, ", "))
	for i, m := range missing {
		e.WithContext("missing_"+strconv.Itoa(i+1), m)
	}
	if _, err := os.Stat(t.signing.Keystore); err != nil {
		e.WithSuggestion("Run 'xapk-patcher keystore' to create a signing keystore")
	}
	return e
}

func (t *Toolchain) apktool(args ...string) Command {
	if t.tools.ApktoolJar != "" {
		return Command{Name: t.tools.Java, Args: append([]string{"-jar", t.tools.ApktoolJar}, args...)}
	}
	return Command{Name: t.tools.Apktool, Args: args}
}

// Decode runs apktool d on apk into out, replacing out
func (t *Toolchain) Decode(ctx context.Context, apk, out string, opts DecodeOptions) (*Result, error) {
	if err := requireAPK(apk); err != nil {
		return nil, err
	}
	args := []string{"-f", "d", apk, "-o", out}
	if opts.NoSource {
		args = append(args, "--no-src")
	}
	if opts.ResourceMode != "" && opts.ResourceMode != "remove" {
		args = append(args, "--resource-mode", opts.ResourceMode)
	}
	return t.run(ctx, "apktool", t.apktool(args...), out)
}

// Build runs apktool b on dir, writing the package to out
func (t *Toolchain) Build(ctx context.Context, dir, out string, opts BuildOptions) (*Result, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, perrors.NewFileNotFoundError(dir)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return nil, perrors.NewFileSystemError("BUILD_MKDIR", "failed to create "+filepath.Dir(out), err)
	}
	args := []string{"b", dir, "-o", out}
	if opts.UseAAPT2 {
		args = append(args, "--use-aapt2")
	}
	if opts.CopyOriginal {
		args = append(args, "--copy-original")
	}
	return t.run(ctx, "apktool", t.apktool(args...), out)
}

// Align runs zipalign on in, writing out
func (t *Toolchain) Align(ctx context.Context, in, out string) (*Result, error) {
	if err := requireAPK(in); err != nil {
		return nil, err
	}
	cmd := Command{Name: t.tools.Zipalign, Args: []string{"-f", "-v", strconv.Itoa(t.pageSize), in, out}}
	return t.run(ctx, "zipalign", cmd, out)
}

// Sign signs in with the configured keystore, writing out
func (t *Toolchain) Sign(ctx context.Context, in, out string) (*Result, error) {
	if err := requireAPK(in); err != nil {
		return nil, err
	}
	args := []string{"sign",
		"--ks", t.signing.Keystore,
		"--ks-pass", "pass:" + t.signing.KeystorePassword,
	}
	if t.signing.KeyAlias != "" {
		args = append(args, "--ks-key-alias", t.signing.KeyAlias)
	}
	args = append(args, "--out", out, in)
	return t.run(ctx, "apksigner", Command{Name: t.tools.Apksigner, Args: args}, out)
}

// Verify checks the signature of apk
func (t *Toolchain) Verify(ctx context.Context, apk string) (*Result, error) {
	if err := requireAPK(apk); err != nil {
		return nil, err
	}
	return t.run(ctx, "apksigner", Command{Name: t.tools.Apksigner, Args: []string{"verify", "-v", apk}}, "")
}

// GenerateKeystore creates the configured keystore with keytool. An existing
// keystore is never overwritten.
func (t *Toolchain) GenerateKeystore(ctx context.Context) (*Result, error) {
	if _, err := os.Stat(t.signing.Keystore); err == nil {
		return nil, perrors.NewPreconditionError("KEYSTORE_EXISTS", "keystore already exists: "+t.signing.Keystore).
			WithContext("path", t.signing.Keystore)
	}
	if dir := filepath.Dir(t.signing.Keystore); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, perrors.NewFileSystemError("KEYSTORE_MKDIR", "failed to create "+dir, err)
		}
	}
	args := []string{"-genkeypair", "-v",
		"-keystore", t.signing.Keystore,
		"-storepass", t.signing.KeystorePassword,
		"-keypass", t.signing.KeystorePassword,
		"-keyalg", "RSA",
		"-keysize", "2048",
		"-validity", "10000",
		"-alias", t.signing.KeyAlias,
		"-dname", t.signing.DName,
		"-noprompt",
	}
	return t.run(ctx, "keytool", Command{Name: t.tools.Keytool, Args: args}, t.signing.Keystore)
}

// run executes cmd and turns a failed start, a non-zero exit status or a
// missing artifact into an error.
func (t *Toolchain) run(ctx context.Context, tool string, cmd Command, artifact string) (*Result, error) {
	t.logger.Info("Running %s", redact(cmd))
	res, err := t.runner.Run(ctx, cmd)
	if err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeExternalTool, "TOOL_START", "failed to start "+tool).
			WithContext("command", redact(cmd).String()).
			WithSuggestion("Run 'xapk-patcher doctor' to check the environment")
	}
	if res.ExitCode != 0 {
		return res, perrors.NewExternalToolError(tool, res.ExitCode, tail(res.Output(), outputTail)).
			WithContext("command", redact(cmd).String())
	}
	if artifact != "" {
		if _, err := os.Stat(artifact); err != nil {
			return res, perrors.NewStructuralError("TOOL_OUTPUT_MISSING", artifact).
				WithContext("tool", tool)
		}
	}
	t.logger.Debug("%s finished in %s", tool, res.Duration)
	return res, nil
}

// redact hides passwords passed on the command line
func redact(cmd Command) Command {
	out := Command{Name: cmd.Name, Dir: cmd.Dir, Args: make([]string, len(cmd.Args))}
	copy(out.Args, cmd.Args)
	for i, a := range out.Args {
		switch {
		case strings.HasPrefix(a, "pass:"):
			out.Args[i] = "pass:***"
		case i > 0 && (out.Args[i-1] == "-storepass" || out.Args[i-1] == "-keypass"):
			out.Args[i] = "***"
		}
	}
	return out
}

func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func requireAPK(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return perrors.NewFileNotFoundError(path)
	}
	if !strings.EqualFold(filepath.Ext(path), apkExtension) {
		return perrors.NewFormatError(path, apkExtension)
	}
	return nil
}
