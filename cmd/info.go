package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huanfeng/xapk-patcher/internal/i18n"
	"github.com/huanfeng/xapk-patcher/pkg/inspect"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show metadata of an .apk, .xapk or .apkm file",
	Long: `Show package name, version, SDK levels, architectures and densities of a
package or bundle. When GITHUB_OUTPUT is set the values are also appended to
that file as apk_* outputs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := inspect.Inspect(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if infoJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal info: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else {
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			rows := [][2]string{
				{i18n.T("info.type"), info.Type},
				{i18n.T("info.package"), info.PackageName},
				{i18n.T("info.name"), info.AppName},
				{i18n.T("info.version"), fmt.Sprintf("%s (%s)", info.VersionName, info.VersionCode)},
				{i18n.T("info.sdk"), fmt.Sprintf("%s / %s", info.MinSDK, info.TargetSDK)},
				{i18n.T("info.abis"), strings.Join(info.Architectures, ", ")},
				{i18n.T("info.densities"), strings.Join(info.Densities, ", ")},
			}
			if len(info.Splits) > 0 {
				rows = append(rows, [2]string{i18n.T("info.splits"), strings.Join(info.Splits, ", ")})
			}
			for _, r := range rows {
				fmt.Fprintf(w, "%s:\t%s\n", r[0], r[1])
			}
			w.Flush()
		}

		if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
			if err := info.AppendGitHubOutput(path); err != nil {
				return err
			}
			logger.Debug("Appended outputs to %s", path)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(infoCmd)
}
