package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/cmd/cmd_bus"
	"github.com/GregAscolab/python-microservice-test/cmd/cmd_compute"
	"github.com/GregAscolab/python-microservice-test/cmd/cmd_ctl"
	"github.com/GregAscolab/python-microservice-test/cmd/cmd_manager"
	"github.com/GregAscolab/python-microservice-test/cmd/cmd_settings"
)

var rootCmd = &cobra.Command{
	Use:   "fabricd",
	Short: "Field telemetry service fabric",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmd_manager.Cmd)
	rootCmd.AddCommand(cmd_settings.Cmd)
	rootCmd.AddCommand(cmd_compute.Cmd)
	rootCmd.AddCommand(cmd_bus.Cmd)
	rootCmd.AddCommand(cmd_ctl.Cmd)
}
