package cmd_ctl

import (
	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/servs/s_compute/compute_serv"
)

// signalsCmd lists the signals currently known to the compute engine
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List the engine's available signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := sendCommand(compute_serv.ServiceName, codec.Record{"command": "get_available_signals"})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	Cmd.AddCommand(signalsCmd)
}
