package models

// Config represents the application configuration
type Config struct {
	WorkRoot string        `mapstructure:"work_root" json:"work_root"`
	Tools    ToolsConfig   `mapstructure:"tools" json:"tools"`
	Signing  SigningConfig `mapstructure:"signing" json:"signing"`
	Decode   DecodeConfig  `mapstructure:"decode" json:"decode"`
	Build    BuildConfig   `mapstructure:"build" json:"build"`
	Align    AlignConfig   `mapstructure:"align" json:"align"`
	Merge    MergeConfig   `mapstructure:"merge" json:"merge"`
	Patch    PatchConfig   `mapstructure:"patch" json:"patch"`
	Log      LogConfig     `mapstructure:"log" json:"log"`
}

// ToolsConfig holds paths to the external collaborators
type ToolsConfig struct {
	Java       string `mapstructure:"java" json:"java"`
	ApktoolJar string `mapstructure:"apktool_jar" json:"apktool_jar"`
	Apktool    string `mapstructure:"apktool" json:"apktool"` // wrapper binary, used when ApktoolJar is empty
	Zipalign   string `mapstructure:"zipalign" json:"zipalign"`
	Apksigner  string `mapstructure:"apksigner" json:"apksigner"`
	Keytool    string `mapstructure:"keytool" json:"keytool"`
}

// SigningConfig contains keystore settings used by apksigner and keytool
type SigningConfig struct {
	Keystore         string `mapstructure:"keystore" json:"keystore"`
	KeystorePassword string `mapstructure:"keystore_password" json:"-"`
	KeyAlias         string `mapstructure:"key_alias" json:"key_alias"`
	DName            string `mapstructure:"dname" json:"dname"`
}

// DecodeConfig controls apktool decode
type DecodeConfig struct {
	ResourceMode string `mapstructure:"resource_mode" json:"resource_mode"` // "keep", "dummy", "remove"
}

// BuildConfig controls apktool build
type BuildConfig struct {
	UseAAPT2 bool `mapstructure:"use_aapt2" json:"use_aapt2"`
}

// AlignConfig controls zipalign
type AlignConfig struct {
	PageSize int `mapstructure:"page_size" json:"page_size"`
}

// MergeConfig controls how split packages are folded into the base package
type MergeConfig struct {
	MissingTarget string `mapstructure:"missing_target" json:"missing_target"` // "skip", "create"
	OverlayFiles  bool   `mapstructure:"overlay_files" json:"overlay_files"`
}

// PatchConfig controls the bytecode patch
type PatchConfig struct {
	TargetSymbol string `mapstructure:"target_symbol" json:"target_symbol"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"` // "text", "json"
	File   string `mapstructure:"file" json:"file"`
}
