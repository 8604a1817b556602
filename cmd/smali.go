package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huanfeng/xapk-patcher/internal/i18n"
	"github.com/huanfeng/xapk-patcher/pkg/project"
	"github.com/huanfeng/xapk-patcher/pkg/smali"
)

var (
	smaliDryRun bool
	smaliSymbol string
)

var smaliCmd = &cobra.Command{
	Use:   "smali <decoded-dir>",
	Short: "Patch the bytecode check in a decoded package",
	Long: `Rewrite every call to the target method in the smali* directories of a
decoded package so its result is forced to false. Running it twice is safe:
already patched call sites are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := project.Open(args[0])
		if err != nil {
			return err
		}

		symbol := appConfig.Patch.TargetSymbol
		if smaliSymbol != "" {
			symbol = smaliSymbol
		}
		patcher := smali.NewPatcher(symbol)
		out := cmd.OutOrStdout()

		if smaliDryRun {
			files, err := patcher.FindCandidates(tree)
			if err != nil {
				return err
			}
			for _, file := range files {
				diff, err := patcher.Diff(file)
				if err != nil {
					return err
				}
				fmt.Fprint(out, diff)
			}
			fmt.Fprintln(out, i18n.T("smali.candidates", map[string]interface{}{
				"Count":  len(files),
				"Symbol": symbol,
			}))
			return nil
		}

		report, err := patcher.ApplyTree(tree)
		if err != nil {
			return err
		}
		for _, f := range report.Files {
			logger.Debug("%s: %d site(s)", f.Path, f.Sites)
		}
		fmt.Fprintln(out, i18n.T("patch.smaliSummary", map[string]interface{}{
			"Sites": report.Sites,
			"Files": len(report.Files),
		}))
		return nil
	},
}

func init() {
	smaliCmd.Flags().BoolVar(&smaliDryRun, "dry-run", false, "print the diffs without changing files")
	smaliCmd.Flags().StringVar(&smaliSymbol, "symbol", "", "method name to patch (default from config)")
	rootCmd.AddCommand(smaliCmd)
}
