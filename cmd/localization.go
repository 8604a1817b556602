package cmd

import "github.com/huanfeng/xapk-patcher/internal/i18n"

// applyCommandLocalization updates command and flag descriptions after i18n is initialized.
func applyCommandLocalization() {
	rootCmd.Short = i18n.T("cmd.root.short")
	rootCmd.Long = i18n.T("cmd.root.long")

	for name, id := range map[string]string{
		"config":   "flags.config",
		"work-dir": "flags.workDir",
		"verbose":  "flags.verbose",
		"debug":    "flags.debug",
		"log-file": "flags.logFile",
		"no-color": "flags.noColor",
		"lang":     "flags.lang",
	} {
		if flag := rootCmd.PersistentFlags().Lookup(name); flag != nil {
			flag.Usage = i18n.T(id)
		}
	}

	patchCmd.Short = i18n.T("cmd.patch.short")
	patchCmd.Long = i18n.T("cmd.patch.long")

	mergeCmd.Short = i18n.T("cmd.merge.short")
	mergeCmd.Long = i18n.T("cmd.merge.long")

	smaliCmd.Short = i18n.T("cmd.smali.short")
	smaliCmd.Long = i18n.T("cmd.smali.long")

	infoCmd.Short = i18n.T("cmd.info.short")
	infoCmd.Long = i18n.T("cmd.info.long")

	doctorCmd.Short = i18n.T("cmd.doctor.short")
	doctorCmd.Long = i18n.T("cmd.doctor.long")

	keystoreCmd.Short = i18n.T("cmd.keystore.short")
	keystoreCmd.Long = i18n.T("cmd.keystore.long")

	configCmd.Short = i18n.T("cmd.config.short")

	versionCmd.Short = i18n.T("cmd.version.short")
	versionCmd.Long = i18n.T("cmd.version.long")
}
