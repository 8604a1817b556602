package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	perrors "github.com/huanfeng/xapk-patcher/internal/errors"
	"github.com/huanfeng/xapk-patcher/internal/i18n"
	"github.com/huanfeng/xapk-patcher/pkg/system"
)

var doctorCommand string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the external tools and the keystore are usable",
	Long: `The doctor command looks for java, apktool, zipalign, apksigner and
keytool on PATH and in the usual Android SDK and JDK locations, probes their
versions and checks that the signing keystore and the work root are usable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		logger.Info("Starting system diagnostics...")

		fmt.Fprintln(out, "🏥 "+i18n.T("doctor.title"))
		fmt.Fprintln(out, strings.Repeat("=", 50))

		var issues, suggestions []string

		fmt.Fprintln(out, "\n🔍 "+i18n.T("doctor.checkingDeps"))
		checkDependencies(out, depManager, &issues, &suggestions)

		fmt.Fprintln(out, "\n⚙️  "+i18n.T("doctor.checkingConfig"))
		checkConfiguration(out, &issues, &suggestions)

		fmt.Fprintln(out, "\n"+strings.Repeat("=", 50))
		if len(issues) == 0 {
			fmt.Fprintln(out, "✅ "+i18n.T("doctor.allPassed"))
			return nil
		}

		fmt.Fprintf(out, "❌ %s\n\n", i18n.T("doctor.issuesFound", map[string]interface{}{"Count": len(issues)}))
		for i, issue := range issues {
			fmt.Fprintf(out, "%d. %s\n", i+1, issue)
		}
		if len(suggestions) > 0 {
			fmt.Fprintln(out, "\n💡 "+i18n.T("doctor.suggestions"))
			for _, s := range suggestions {
				fmt.Fprintf(out, "   %s\n", s)
			}
		}

		return perrors.NewPreconditionError("DOCTOR_FAILED", "system diagnostics found issues")
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorCommand, "for", "", "only check the tools a command needs (patch, keystore)")
	rootCmd.AddCommand(doctorCmd)
}

// checkDependencies reports every tool in a stable order and collects
// install instructions for the required ones that are missing
func checkDependencies(out io.Writer, dm system.DependencyManager, issues, suggestions *[]string) {
	var deps []system.DependencyStatus
	if doctorCommand != "" {
		deps = dm.CheckForCommand(doctorCommand)
	} else {
		all := dm.CheckAll()
		for _, name := range system.Names() {
			deps = append(deps, all[name])
		}
	}

	var missing []string
	for _, dep := range deps {
		switch {
		case dep.Available:
			fmt.Fprintf(out, "   ✅ %-10s %s (%s)\n", dep.Name, dep.Version, dep.Path)
		case dep.Required:
			fmt.Fprintf(out, "   ❌ %-10s %s\n", dep.Name, i18n.T("doctor.missingRequired"))
			missing = append(missing, dep.Name)
		default:
			fmt.Fprintf(out, "   ⚠️  %-10s %s\n", dep.Name, i18n.T("doctor.missingOptional"))
		}
	}

	// A configured apktool jar stands in for the wrapper
	if appConfig.Tools.ApktoolJar != "" {
		missing = without(missing, system.ToolApktool)
	}

	if len(missing) > 0 {
		*issues = append(*issues, i18n.T("doctor.missingDeps", map[string]interface{}{
			"Names": strings.Join(missing, ", "),
		}))
		for _, name := range missing {
			*suggestions = append(*suggestions, name+":")
			for _, line := range dm.GetInstallInstructions(name) {
				*suggestions = append(*suggestions, "   "+line)
			}
		}
	}
}

// checkConfiguration checks the keystore and the work root
func checkConfiguration(out io.Writer, issues, suggestions *[]string) {
	ks := appConfig.Signing.Keystore
	if _, err := os.Stat(ks); err != nil {
		fmt.Fprintf(out, "   ❌ %s\n", i18n.T("doctor.keystoreMissing", map[string]interface{}{"Path": ks}))
		*issues = append(*issues, i18n.T("doctor.keystoreMissing", map[string]interface{}{"Path": ks}))
		*suggestions = append(*suggestions, "xapk-patcher keystore")
	} else {
		fmt.Fprintf(out, "   ✅ %s\n", i18n.T("doctor.keystoreOK", map[string]interface{}{"Path": ks}))
	}

	ws := system.CheckWorkRoot(appConfig.WorkRoot, system.MinWorkRootSpace)
	switch {
	case !ws.Writable:
		fmt.Fprintf(out, "   ❌ %s: %s\n", ws.Path, ws.Error)
		*issues = append(*issues, i18n.T("doctor.workRootUnwritable", map[string]interface{}{"Path": ws.Path}))
	case ws.LowSpace:
		fmt.Fprintf(out, "   ⚠️  %s\n", i18n.T("doctor.lowSpace", map[string]interface{}{
			"Path":      ws.Path,
			"Available": system.FormatBytes(ws.Disk.Available),
		}))
		*suggestions = append(*suggestions, "--work-dir <dir on a larger disk>")
	default:
		fmt.Fprintf(out, "   ✅ %s\n", i18n.T("doctor.workRootOK", map[string]interface{}{"Path": ws.Path}))
		if ws.Disk != nil {
			fmt.Fprintf(out, "   💿 %s (%.1f%%)\n", system.FormatBytes(ws.Disk.Available), ws.Disk.UsedPct())
		}
	}
}

func without(list []string, name string) []string {
	var out []string
	for _, s := range list {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
