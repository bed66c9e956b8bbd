package commands

import (
	"github.com/danmuck/qrgate/internal/config"
	"github.com/danmuck/qrgate/internal/logging"
	"github.com/danmuck/qrgate/internal/status"
	"github.com/spf13/cobra"
)

var configPath string

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "qrgate",
		Short:         "Secure QR ingestion and access dispatch gateway",
		Version:       status.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config path (default $"+config.EnvConfigPath+")")
	root.AddCommand(serveCmd(), sendCmd(), sealCmd(), signCmd(), keygenCmd())
	return root
}

func Execute() error {
	return newRoot().Execute()
}

func loadConfig() (config.Config, error) {
	return config.Load(config.ResolvePath(configPath))
}
