package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/huanfeng/xapk-patcher/internal/config"
	"github.com/huanfeng/xapk-patcher/internal/i18n"
	"github.com/huanfeng/xapk-patcher/internal/version"
	"github.com/huanfeng/xapk-patcher/pkg/models"
	"github.com/huanfeng/xapk-patcher/pkg/system"
	"github.com/huanfeng/xapk-patcher/pkg/toolchain"
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

var (
	configPath string
	workDir    string
	verbose    bool
	debug      bool
	logFile    string
	noColor    bool
	langFlag   string

	// Populated by the persistent pre-run hook
	appConfig *models.Config
	logger    utils.Logger

	// depManager is shared so doctor reuses the probes made at startup
	depManager system.DependencyManager
)

var rootCmd = &cobra.Command{
	Use:   "xapk-patcher",
	Short: "Merge split APK bundles and patch them into one installable APK",
	Long: `xapk-patcher turns an .xapk/.apkm bundle or a single .apk into one signed,
aligned APK: split packages are merged into the base, split markers are
stripped from the manifest and the mock-location check is patched out.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", i18n.T("common.error"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = bootstrap
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./xapk-patcher.yaml)")
	pf.StringVar(&workDir, "work-dir", "", "working root for intermediate files")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&debug, "debug", false, "debug output, including tool command lines")
	pf.StringVar(&logFile, "log-file", "", "also write logs to this file")
	pf.BoolVar(&noColor, "no-color", false, "disable colored log output")
	pf.StringVar(&langFlag, "lang", "", "interface language (en, zh)")
}

// bootstrap initializes i18n, configuration and logging for every command
func bootstrap(cmd *cobra.Command, args []string) error {
	if err := i18n.Init(langFlag); err != nil {
		fmt.Fprintf(os.Stderr, "i18n: %v\n", err)
	}
	applyCommandLocalization()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workDir != "" {
		cfg.WorkRoot = workDir
	}

	logCfg := utils.DefaultLoggerConfig()
	logCfg.Level = utils.ParseLogLevel(cfg.Log.Level)
	logCfg.Format = utils.ParseLogFormat(cfg.Log.Format)
	logCfg.FilePath = cfg.Log.File
	logCfg.EnableColor = !noColor
	if verbose && logCfg.Level > utils.LogLevelInfo {
		logCfg.Level = utils.LogLevelInfo
	}
	if debug {
		logCfg.Level = utils.LogLevelDebug
	}
	if logFile != "" {
		logCfg.FilePath = logFile
	}
	if err := utils.InitGlobalLogger(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = utils.GetGlobalLogger()

	depManager = system.NewDependencyManager()
	cfg.Tools = toolchain.Resolve(cfg.Tools, depManager)
	appConfig = cfg
	logger.Debug("Config loaded: work_root=%s apktool_jar=%q", cfg.WorkRoot, cfg.Tools.ApktoolJar)
	return nil
}

// newToolchain builds the toolchain from the loaded config. Tool output is
// streamed to stderr in debug mode.
func newToolchain() *toolchain.Toolchain {
	var stream io.Writer
	if debug {
		stream = os.Stderr
	}
	return toolchain.New(appConfig, toolchain.NewExecRunner(stream, logger), logger)
}
