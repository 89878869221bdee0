package cmd_ctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/servs/s_manager/manager_serv"
)

// statusCmd prints the supervisor's fleet snapshot
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the fleet status",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := sendCommand(manager_serv.ServiceName, codec.Record{"command": "get_status"})
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

func fleetAction(command string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		req := codec.Record{"command": command}
		if len(args) == 1 {
			req["service_name"] = args[0]
		}
		result, err := sendCommand(manager_serv.ServiceName, req)
		if err != nil {
			return err
		}
		if result.GetString("status") != "ok" {
			return fmt.Errorf("%s", result.GetString("message"))
		}
		fmt.Println("ok")
		return nil
	}
}

var startCmd = &cobra.Command{
	Use:   "start <service>",
	Short: "Start one service",
	Args:  cobra.ExactArgs(1),
	RunE:  fleetAction("start_service"),
}

var stopCmd = &cobra.Command{
	Use:   "stop <service>",
	Short: "Stop one service",
	Args:  cobra.ExactArgs(1),
	RunE:  fleetAction("stop_service"),
}

var restartCmd = &cobra.Command{
	Use:   "restart <service>",
	Short: "Restart one service",
	Args:  cobra.ExactArgs(1),
	RunE:  fleetAction("restart_service"),
}

var startAllCmd = &cobra.Command{
	Use:   "start-all",
	Short: "Start the whole fleet",
	Args:  cobra.NoArgs,
	RunE:  fleetAction("start_all"),
}

var stopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Stop the whole fleet",
	Args:  cobra.NoArgs,
	RunE:  fleetAction("stop_all"),
}

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(startCmd)
	Cmd.AddCommand(stopCmd)
	Cmd.AddCommand(restartCmd)
	Cmd.AddCommand(startAllCmd)
	Cmd.AddCommand(stopAllCmd)
}
