// Command as4-wssec adds WS-Security headers to AS4 envelopes and manages
// the keystore they are signed with.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-as4-wssec/cmd/as4-wssec/keyscmd"
	"github.com/sirosfoundation/go-as4-wssec/cmd/as4-wssec/securecmd"
	"github.com/sirosfoundation/go-as4-wssec/internal/cmdutil"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "as4-wssec",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
	rootCmd.PersistentFlags().StringP(cmdutil.ConfigFlagName, "c", "", cmdutil.ConfigFlagUsage)

	rootCmd.AddCommand(securecmd.GetSecureCmd())
	rootCmd.AddCommand(keyscmd.GetKeysCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to run as4-wssec: %s", err.Error())
	}
}
