package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/pkg/models"
	"github.com/spf13/viper"
)

// Missing-target policies for the values merge
const (
	MissingTargetSkip   = "skip"
	MissingTargetCreate = "create"
)

var defaultConfig = models.Config{
	WorkRoot: "xapk-work",
	Tools: models.ToolsConfig{
		Java:       "java",
		ApktoolJar: "",
		Apktool:    "apktool",
		Zipalign:   "zipalign",
		Apksigner:  "apksigner",
		Keytool:    "keytool",
	},
	Signing: models.SigningConfig{
		Keystore:         "keystore.jks",
		KeystorePassword: "12345678",
		KeyAlias:         "key",
		DName:            "CN=xapk-patcher, OU=Dev, O=Local, C=US",
	},
	Decode: models.DecodeConfig{ResourceMode: "keep"},
	Build:  models.BuildConfig{UseAAPT2: true},
	Align:  models.AlignConfig{PageSize: 4},
	Merge: models.MergeConfig{
		MissingTarget: MissingTargetSkip,
		OverlayFiles:  true,
	},
	Patch: models.PatchConfig{TargetSymbol: "isFromMockProvider"},
	Log:   models.LogConfig{Level: "info", Format: "text"},
}

// Default returns a copy of the built-in configuration
func Default() models.Config {
	return defaultConfig
}

// Load loads configuration from file and environment. The returned record
// is the only place tool paths and secrets are read from; nothing below the
// command layer consults the environment.
func Load(configPath string) (*models.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("work_root", defaultConfig.WorkRoot)
	v.SetDefault("tools.java", defaultConfig.Tools.Java)
	v.SetDefault("tools.apktool_jar", defaultConfig.Tools.ApktoolJar)
	v.SetDefault("tools.apktool", defaultConfig.Tools.Apktool)
	v.SetDefault("tools.zipalign", defaultConfig.Tools.Zipalign)
	v.SetDefault("tools.apksigner", defaultConfig.Tools.Apksigner)
	v.SetDefault("tools.keytool", defaultConfig.Tools.Keytool)
	v.SetDefault("signing.keystore", defaultConfig.Signing.Keystore)
	v.SetDefault("signing.keystore_password", defaultConfig.Signing.KeystorePassword)
	v.SetDefault("signing.key_alias", defaultConfig.Signing.KeyAlias)
	v.SetDefault("signing.dname", defaultConfig.Signing.DName)
	v.SetDefault("decode.resource_mode", defaultConfig.Decode.ResourceMode)
	v.SetDefault("build.use_aapt2", defaultConfig.Build.UseAAPT2)
	v.SetDefault("align.page_size", defaultConfig.Align.PageSize)
	v.SetDefault("merge.missing_target", defaultConfig.Merge.MissingTarget)
	v.SetDefault("merge.overlay_files", defaultConfig.Merge.OverlayFiles)
	v.SetDefault("patch.target_symbol", defaultConfig.Patch.TargetSymbol)
	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.format", defaultConfig.Log.Format)
	v.SetDefault("log.file", defaultConfig.Log.File)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("xapk-patcher")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "xapk-patcher"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, perrors.WrapError(err, perrors.ErrorTypeConfiguration, "CONFIG_READ",
				"failed to read config file")
		}
		// Config file not found is not an error, we'll use defaults
	}

	// XAPKPATCH_SIGNING_KEYSTORE_PASSWORD -> signing.keystore_password
	v.SetEnvPrefix("XAPKPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, perrors.WrapError(err, perrors.ErrorTypeConfiguration, "CONFIG_DECODE",
			"failed to unmarshal config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that cannot be caught by unmarshalling
func Validate(cfg *models.Config) error {
	switch cfg.Merge.MissingTarget {
	case MissingTargetSkip, MissingTargetCreate:
	default:
		return perrors.NewConfigurationError("MERGE_POLICY",
			fmt.Sprintf("merge.missing_target must be %q or %q, got %q",
				MissingTargetSkip, MissingTargetCreate, cfg.Merge.MissingTarget))
	}

	switch cfg.Decode.ResourceMode {
	case "keep", "dummy", "remove":
	default:
		return perrors.NewConfigurationError("RESOURCE_MODE",
			fmt.Sprintf("decode.resource_mode must be keep, dummy or remove, got %q", cfg.Decode.ResourceMode))
	}

	if cfg.Align.PageSize <= 0 {
		return perrors.NewConfigurationError("ALIGN_PAGE_SIZE", "align.page_size must be positive")
	}
	if strings.TrimSpace(cfg.Patch.TargetSymbol) == "" {
		return perrors.NewConfigurationError("PATCH_SYMBOL", "patch.target_symbol must not be empty")
	}
	if strings.TrimSpace(cfg.WorkRoot) == "" {
		return perrors.NewConfigurationError("WORK_ROOT", "work_root must not be empty")
	}

	return nil
}

// SaveTemplate saves a configuration template
func SaveTemplate(path string) error {
	templateContent := `# xapk-patcher configuration

# Working root for extraction, decompilation and intermediate builds.
# Directories below it are discarded at the start of every run.
work_root: "xapk-work"

tools:
  java: "java"
  # When set, apktool is run as "java -jar <apktool_jar>"
  apktool_jar: ""
  # Wrapper binary used when apktool_jar is empty
  apktool: "apktool"
  zipalign: "zipalign"
  apksigner: "apksigner"
  keytool: "keytool"

signing:
  keystore: "keystore.jks"
  # Prefer XAPKPATCH_SIGNING_KEYSTORE_PASSWORD over storing it here
  keystore_password: "12345678"
  key_alias: "key"

decode:
  # keep, dummy or remove
  resource_mode: "keep"

build:
  use_aapt2: true

align:
  page_size: 4

merge:
  # What to do when a split has res/values/<file>.xml and the base does not:
  # - "skip": leave it out and report it
  # - "create": copy the split's file into the base
  missing_target: "skip"
  # Copy remaining split files into the base without overwriting
  overlay_files: true

patch:
  target_symbol: "isFromMockProvider"

log:
  level: "info"
  format: "text"
  file: ""
`

	return os.WriteFile(path, []byte(templateContent), 0644)
}
