package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/internal/i18n"
	"github.com/huanfeng/xapk-patcher/pkg/pipeline"
	"github.com/huanfeng/xapk-patcher/pkg/utils"
)

var (
	patchInput  string
	patchOutput string
)

var patchCmd = &cobra.Command{
	Use:   "patch -i <input> [-o <output>]",
	Short: "Merge, sanitize, patch, rebuild and sign a package or bundle",
	Long: `Run the full pipeline on an .apk, .xapk or .apkm file.

Bundles are extracted, every package is decoded, the splits are merged into
the base, the base is rebuilt, signed, decoded again, its manifest is cleaned
of split markers, the bytecode check is patched and the result is rebuilt,
aligned and signed once more. A plain .apk skips the merge.`,
	Example: `  xapk-patcher patch -i app.xapk -o app-patched.apk
  xapk-patcher patch -i app.apk --work-dir /tmp/xapk-work`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if patchOutput == "" {
			patchOutput = defaultOutput(patchInput)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		progress := utils.NewStageProgress(cmd.OutOrStdout())
		p := pipeline.New(*appConfig, newToolchain(),
			pipeline.WithLogger(logger),
			pipeline.WithObserver(pipeline.NewProgressObserver(progress, stageLabel)),
		)

		fmt.Fprintln(cmd.OutOrStdout(), i18n.T("patch.starting", map[string]interface{}{
			"Input": patchInput,
			"Work":  p.Layout().Root,
		}))

		res, err := p.Run(ctx, patchInput, patchOutput)
		progress.Finish()
		if err != nil {
			showFailure(cmd, res, err)
			return err
		}

		printSummary(cmd, res)
		return nil
	},
}

func init() {
	patchCmd.Flags().StringVarP(&patchInput, "input", "i", "", "input .apk, .xapk or .apkm file")
	patchCmd.Flags().StringVarP(&patchOutput, "output", "o", "", "output .apk (default <input>-patched.apk)")
	_ = patchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(patchCmd)
}

// defaultOutput places the result next to the input
func defaultOutput(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+"-patched.apk")
}

func stageLabel(s pipeline.Stage) string {
	id := "stage." + string(s)
	if !i18n.Has(id) {
		return string(s)
	}
	return i18n.T(id)
}

func printSummary(cmd *cobra.Command, res *pipeline.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)

	if res.Merge != nil {
		printMergeResult(out, res.Merge)
	}

	if r := res.Manifest; r != nil {
		fmt.Fprintln(out, i18n.T("patch.manifestSummary", map[string]interface{}{
			"Count": len(r.Removed),
		}))
	}

	if r := res.Patches; r != nil {
		fmt.Fprintln(out, i18n.T("patch.smaliSummary", map[string]interface{}{
			"Sites": r.Sites,
			"Files": len(r.Files),
		}))
		if r.Sites == 0 {
			fmt.Fprintf(out, "   ⚠️  %s\n", i18n.T("patch.noSites", map[string]interface{}{
				"Symbol": appConfig.Patch.TargetSymbol,
			}))
		}
	}

	fmt.Fprintf(out, "\n✅ %s\n", i18n.T("patch.done", map[string]interface{}{
		"Output": res.Output,
	}))
}

func showFailure(cmd *cobra.Command, res *pipeline.Result, err error) {
	out := cmd.ErrOrStderr()
	if res != nil && res.ReportPath != "" {
		if report, loadErr := perrors.LoadReport(res.ReportPath); loadErr == nil {
			perrors.NewErrorReporter("", logger).DisplayReport(out, report)
			fmt.Fprintf(out, "\n%s\n", i18n.T("patch.reportSaved", map[string]interface{}{
				"Path": res.ReportPath,
			}))
			return
		}
	}
	if pe, ok := perrors.As(err); ok {
		fmt.Fprint(out, pe.FormatDetailed())
	}
}
