package commands

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/danmuck/qrgate/internal/verify"
	"github.com/spf13/cobra"
)

// seal <payload>: wrap a payload in a secretbox token.
func sealCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "seal <payload>",
		Short: "Seal a payload with the shared secretbox secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("QRGATE_SECRET")
			}
			if secret == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.Verify.Secret
			}
			s, err := verify.NewSecretboxScheme([]byte(secret))
			if err != nil {
				return err
			}
			token, err := s.Seal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "shared secret (default $QRGATE_SECRET, then config)")
	return cmd
}

// sign <payload>: sign a payload with an ed25519 private key.
func signCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "sign <payload>",
		Short: "Sign a payload with an ed25519 private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("QRGATE_SIGNING_KEY")
			}
			if key == "" {
				return fmt.Errorf("signing key required (--key or $QRGATE_SIGNING_KEY)")
			}
			priv, err := verify.ParsePrivateKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), verify.SignEd25519(priv, args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hex ed25519 seed or private key")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 key pair for the ed25519 scheme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := verify.GenerateEd25519()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "public_key  = %s\n", hex.EncodeToString(pub))
			fmt.Fprintf(out, "private_key = %s\n", hex.EncodeToString(priv.Seed()))
			return nil
		},
	}
}
