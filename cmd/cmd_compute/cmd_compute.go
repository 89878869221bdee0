// Package cmd_compute runs the compute engine.
package cmd_compute

import (
	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/runtime"
	"github.com/GregAscolab/python-microservice-test/servs/s_compute/compute_serv"
)

var natsURL string

var Cmd = &cobra.Command{
	Use:   "compute",
	Short: "Run the compute engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := runtime.New(compute_serv.New(),
			runtime.WithBusURL(natsURL),
		)
		return rt.Run()
	},
}

func init() {
	Cmd.Flags().StringVar(&natsURL, "nats-url", bus.DefaultURL, "bootstrap bus URL for the settings fetch")
}
