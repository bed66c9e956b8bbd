package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/qrgate/internal/ingest"
	"github.com/spf13/cobra"
)

// send <payload>: act as a scanner and write one payload.
func sendCmd() *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <payload>",
		Short: "Send one payload to a listener the way a scanner does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				addr = cfg.ListenAddr
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := ingest.Send(ctx, addr, []byte(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %s\n", len(args[0]), addr)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listener address (default listen_addr from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and write timeout")
	return cmd
}
