package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/qrgate/internal/app"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var listen, status string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept scanner connections and forward verified payloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.ListenAddr = listen
			}
			if status != "" {
				cfg.Status.Addr = status
			}
			a, err := app.Build(cfg, app.Options{
				Out: cmd.OutOrStdout(),
				In:  cmd.InOrStdin(),
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override listen_addr")
	cmd.Flags().StringVar(&status, "status", "", "override status.addr")
	return cmd
}
