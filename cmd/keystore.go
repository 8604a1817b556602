package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huanfeng/xapk-patcher/internal/i18n"
)

var (
	keystorePath  string
	keystoreAlias string
	keystoreDName string
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Create the signing keystore with keytool",
	Long: `Create the keystore used to sign patched packages. Path, password, alias
and distinguished name come from the signing section of the config. An
existing keystore is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keystorePath != "" {
			appConfig.Signing.Keystore = keystorePath
		}
		if keystoreAlias != "" {
			appConfig.Signing.KeyAlias = keystoreAlias
		}
		if keystoreDName != "" {
			appConfig.Signing.DName = keystoreDName
		}

		if _, err := newToolchain().GenerateKeystore(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✅ "+i18n.T("keystore.created", map[string]interface{}{
			"Path":  appConfig.Signing.Keystore,
			"Alias": appConfig.Signing.KeyAlias,
		}))
		return nil
	},
}

func init() {
	keystoreCmd.Flags().StringVar(&keystorePath, "out", "", "keystore path (default signing.keystore)")
	keystoreCmd.Flags().StringVar(&keystoreAlias, "alias", "", "key alias (default signing.key_alias)")
	keystoreCmd.Flags().StringVar(&keystoreDName, "dname", "", "distinguished name (default signing.dname)")
	rootCmd.AddCommand(keystoreCmd)
}
