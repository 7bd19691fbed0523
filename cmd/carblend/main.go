package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/menta2k/carblend"
	"github.com/menta2k/carblend/internal/config"
	"github.com/menta2k/carblend/internal/utils"
)

var configPath string

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "carblend",
		Short:         "Composite segmented cars onto street backgrounds to build a viewpoint dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.GetConfigPath()+" when present)")

	root.AddCommand(
		GenerateCommand(),
		ClassifyCommand(),
		ConfigCommand(),
		VersionCommand(),
	)
	return root
}

// loadConfig reads the --config file, falling back to the default path
// when it exists and to defaults plus environment otherwise
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	return config.Load(path)
}

func VersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "carblend", carblend.GetVersion())
		},
	}
}
