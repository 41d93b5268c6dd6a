package main

import (
	"github.com/spf13/cobra"

	"github.com/couchcryptid/urban-pulse-etl/internal/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "urbanpulse",
		Short:         "Urban Pulse ETL",
		Long:          "Collects weather, sensor and social sentiment data per city, derives an urban stress index and serves a dashboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath, "path to the YAML config file")

	cmd.AddCommand(
		newRunCommand(opts),
		newExtractCommand(opts),
		newLoadCommand(opts),
		newTransformCommand(opts),
		newScheduleCommand(opts),
		newServeCommand(opts),
		newDashboardCommand(opts),
		newSweepCommand(opts),
		newSeedCommand(opts),
		newCheckCommand(opts),
	)
	return cmd
}
