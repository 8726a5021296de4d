// Command spkrepod runs the package repository server and its admin
// maintenance actions (spec.md §6, and the CLI supplementing
// original_source/spkrepo/cli.py).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/synocommunity/spkrepo/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "spkrepod",
		Short: "Synology package repository server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	root.AddCommand(
		newServeCmd(),
		newCreateUserCmd(),
		newBootstrapDBCmd(),
		newPopulateDBCmd(),
		newDepopulateDBCmd(),
		newResyncCmd(),
		newActivateBuildCmd(),
		newDeactivateBuildCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
