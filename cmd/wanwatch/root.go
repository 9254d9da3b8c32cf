package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pingsantohq/wanwatch/internal/config"
)

const envConfig = "WANWATCH_CONFIG"

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "wanwatch",
		Short: "WAN address monitor with outlet remediation",
		Example: `	wanwatch run --config /etc/wanwatch/config.yaml
	wanwatch resolve
	wanwatch update --check`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(
		&configPath,
		"config",
		getenv(envConfig, config.DefaultConfigPath),
		"path to the YAML configuration (or "+envConfig+")",
	)

	load := func(cmd *cobra.Command) (config.Config, error) {
		return config.Load(cmd.Context(), configPath)
	}
	root.AddCommand(newRunCmd(load))
	root.AddCommand(newResolveCmd(load))
	root.AddCommand(newUpdateCmd(load, &configPath))
	root.AddCommand(newVersionCmd())
	return root
}

type loadFunc func(cmd *cobra.Command) (config.Config, error)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
