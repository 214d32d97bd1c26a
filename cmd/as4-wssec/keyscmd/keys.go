// Package keyscmd implements the "keys" command and its subcommands.
package keyscmd

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-as4-wssec/internal/cmdutil"
	"github.com/sirosfoundation/go-as4-wssec/internal/keystore"
)

const (
	aliasFlagName  = "alias"
	aliasEnvKey    = "AS4WSSEC_KEY_ALIAS"
	aliasFlagUsage = "Keystore alias referenced by P-Modes." +
		" Alternatively, this can be set with the following environment variable: " + aliasEnvKey

	keyFlagName  = "key"
	keyEnvKey    = "AS4WSSEC_KEY_FILE"
	keyFlagUsage = "PEM private key file. Omit to import a partner certificate." +
		" Alternatively, this can be set with the following environment variable: " + keyEnvKey

	certFlagName  = "cert"
	certEnvKey    = "AS4WSSEC_CERT_FILE"
	certFlagUsage = "PEM certificate chain file, end entity first." +
		" Alternatively, this can be set with the following environment variable: " + certEnvKey

	keyPasswordFlagName  = "key-password"
	keyPasswordEnvKey    = "AS4WSSEC_KEY_PASSWORD"
	keyPasswordFlagUsage = "Password of the key file, if encrypted." +
		" Alternatively, this can be set with the following environment variable: " + keyPasswordEnvKey

	passwordFlagName  = "password"
	passwordEnvKey    = "AS4WSSEC_STORE_PASSWORD"
	passwordFlagUsage = "Password the stored key is encrypted with; P-Modes must use it as certificatePassword." +
		" Alternatively, this can be set with the following environment variable: " + passwordEnvKey
)

var errImportUnsupported = errors.New("keys can only be imported in mongodb keystore mode")

// GetKeysCmd returns the Cobra keys command.
func GetKeysCmd() *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage keystore entries",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	importCmd := createImportCmd()
	createImportFlags(importCmd)

	keysCmd.AddCommand(createListCmd())
	keysCmd.AddCommand(importCmd)

	return keysCmd
}

func createListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keystore aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdutil.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := cmdutil.NewLogger(cfg, cmd.ErrOrStderr()); err != nil {
				return err
			}

			ctx := contextOf(cmd)
			provider, err := keystore.NewProvider(ctx, &cfg.Keystore)
			if err != nil {
				return fmt.Errorf("opening keystore: %w", err)
			}
			defer provider.Close()

			keys, err := provider.ListKeys(ctx)
			if err != nil {
				return err
			}
			return printKeys(cmd.OutOrStdout(), keys)
		},
	}
}

func createImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import a key pair or partner certificate into the keystore",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdutil.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := cmdutil.NewLogger(cfg, cmd.ErrOrStderr()); err != nil {
				return err
			}

			alias, err := cmdutil.GetUserSetVar(cmd, aliasFlagName, aliasEnvKey, false)
			if err != nil {
				return err
			}

			certPath, err := cmdutil.GetUserSetVar(cmd, certFlagName, certEnvKey, false)
			if err != nil {
				return err
			}

			keyPath, err := cmdutil.GetUserSetVar(cmd, keyFlagName, keyEnvKey, true)
			if err != nil {
				return err
			}

			keyPassword, err := cmdutil.GetUserSetVar(cmd, keyPasswordFlagName, keyPasswordEnvKey, true)
			if err != nil {
				return err
			}

			password, err := cmdutil.GetUserSetVar(cmd, passwordFlagName, passwordEnvKey, true)
			if err != nil {
				return err
			}

			parameters := &importParameters{
				alias:       alias,
				keyPath:     keyPath,
				certPath:    certPath,
				keyPassword: keyPassword,
				password:    password,
			}

			ctx := contextOf(cmd)
			provider, err := keystore.NewProvider(ctx, &cfg.Keystore)
			if err != nil {
				return fmt.Errorf("opening keystore: %w", err)
			}
			defer provider.Close()

			if err := importKey(ctx, provider, parameters); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", alias)
			return nil
		},
	}
}

func createImportFlags(importCmd *cobra.Command) {
	importCmd.Flags().String(aliasFlagName, "", aliasFlagUsage)
	importCmd.Flags().String(keyFlagName, "", keyFlagUsage)
	importCmd.Flags().String(certFlagName, "", certFlagUsage)
	importCmd.Flags().String(keyPasswordFlagName, "", keyPasswordFlagUsage)
	importCmd.Flags().String(passwordFlagName, "", passwordFlagUsage)
}

type importParameters struct {
	alias       string
	keyPath     string
	certPath    string
	keyPassword string
	password    string
}

func importKey(ctx context.Context, provider keystore.Provider, parameters *importParameters) error {
	importer, ok := provider.(keystore.Importer)
	if !ok {
		return errImportUnsupported
	}

	certPEM, err := os.ReadFile(parameters.certPath)
	if err != nil {
		return fmt.Errorf("reading certificate: %w", err)
	}
	chain, err := keystore.ParseCertificates(certPEM)
	if err != nil {
		return err
	}

	var key crypto.Signer
	if parameters.keyPath != "" {
		keyPEM, err := os.ReadFile(parameters.keyPath)
		if err != nil {
			return fmt.Errorf("reading private key: %w", err)
		}
		key, err = keystore.ParsePrivateKey(keyPEM, parameters.keyPassword)
		if err != nil {
			return err
		}
	}

	return importer.Import(ctx, parameters.alias, key, chain, parameters.password)
}

func printKeys(w io.Writer, keys []keystore.KeyInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tPRIVATE KEY\tALGORITHM\tSUBJECT\tNOT AFTER")
	for _, k := range keys {
		notAfter := ""
		if !k.NotAfter.IsZero() {
			notAfter = k.NotAfter.UTC().Format(time.RFC3339)
		}
		algorithm := k.Algorithm
		if k.KeySize > 0 {
			algorithm = fmt.Sprintf("%s-%d", k.Algorithm, k.KeySize)
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", k.Alias, k.HasPrivateKey, algorithm, k.CertificateSubject, notAfter)
	}
	return tw.Flush()
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
