package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/huanfeng/xapk-patcher/internal/i18n"
	"github.com/huanfeng/xapk-patcher/pkg/merge"
	"github.com/huanfeng/xapk-patcher/pkg/project"
)

var (
	mergeOverlay bool
	mergeJSON    bool
	mergePolicy  string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <target-dir> <source-dir>...",
	Short: "Merge decoded split packages into a decoded base package",
	Long: `Merge res/values entries, the doNotCompress list and split-only files from
one or more decoded split packages into a decoded base package.

Entries already present in the target keep their identifier. A resource
defined by both trees under different identifiers is reported as a conflict.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := project.Open(args[0])
		if err != nil {
			return err
		}
		var sources []*project.Tree
		for _, dir := range args[1:] {
			src, err := project.Open(dir)
			if err != nil {
				return err
			}
			sources = append(sources, src)
		}

		policyName := appConfig.Merge.MissingTarget
		if cmd.Flags().Changed("missing-target") {
			policyName = mergePolicy
		}
		policy, err := merge.ParsePolicy(policyName)
		if err != nil {
			return err
		}
		overlay := appConfig.Merge.OverlayFiles
		if cmd.Flags().Changed("overlay") {
			overlay = mergeOverlay
		}

		res, err := merge.NewMerger(policy, overlay, logger).Merge(target, sources)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if mergeJSON {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal merge result: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		printMergeResult(out, res)
		return nil
	},
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeOverlay, "overlay", true, "copy split-only files into the target")
	mergeCmd.Flags().StringVar(&mergePolicy, "missing-target", "skip", "values file missing from the target: skip or create")
	mergeCmd.Flags().BoolVar(&mergeJSON, "json", false, "print the merge result as JSON")
	rootCmd.AddCommand(mergeCmd)
}

// printMergeResult lists every conflict and every file the merge touched
func printMergeResult(out io.Writer, res *merge.Result) {
	fmt.Fprintln(out, i18n.T("patch.mergeSummary", map[string]interface{}{
		"Entries":   res.AddedEntries,
		"Files":     len(res.AddedFiles),
		"Conflicts": len(res.Conflicts),
	}))
	for _, c := range res.Conflicts {
		fmt.Fprintf(out, "   ⚠️  %s\n", i18n.T("patch.conflict", map[string]interface{}{
			"Type":     c.Type,
			"Name":     c.Name,
			"File":     c.File,
			"Source":   c.Source,
			"Existing": c.Existing["id"],
			"Incoming": c.Incoming["id"],
		}))
	}
	printRecords(out, "   + ", "patch.addedFile", res.AddedFiles)
	printRecords(out, "   + ", "patch.createdFile", res.CreatedFiles)
	printRecords(out, "   ⚠️  ", "patch.fileConflict", res.FileConflicts)
	printRecords(out, "   ⚠️  ", "patch.missingTarget", res.MissingTargets)
	if len(res.DoNotCompress) > 0 {
		fmt.Fprintln(out, i18n.T("merge.doNotCompress", map[string]interface{}{
			"Count": len(res.DoNotCompress),
		}))
	}
}

func printRecords(out io.Writer, prefix, id string, records []merge.FileRecord) {
	for _, f := range records {
		fmt.Fprintln(out, prefix+i18n.T(id, map[string]interface{}{
			"File":   f.Path,
			"Source": f.Source,
		}))
	}
}
