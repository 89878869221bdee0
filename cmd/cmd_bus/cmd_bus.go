// Package cmd_bus runs a standalone bus broker.
package cmd_bus

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/bus"
)

var natsURL string

var Cmd = &cobra.Command{
	Use:   "bus",
	Short: "Run a standalone bus broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		es, err := bus.StartEmbedded(natsURL)
		if err != nil {
			return err
		}
		defer es.Shutdown()
		fmt.Println("bus listening on", es.ClientURL())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&natsURL, "nats-url", bus.DefaultURL, "listen URL")
}
