// Package cmd_manager runs the supervisor.
package cmd_manager

import (
	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/runtime"
	"github.com/GregAscolab/python-microservice-test/servs/s_manager/manager_serv"
)

var (
	natsURL     string
	unitsDir    string
	journalPath string
	httpAddr    string
	embeddedBus bool
)

var Cmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := natsURL
		if embeddedBus {
			es, err := bus.StartEmbedded(url)
			if err != nil {
				return err
			}
			defer es.Shutdown()
			url = es.ClientURL()
		}

		svc := manager_serv.New(manager_serv.Config{
			UnitsDir:    unitsDir,
			JournalPath: journalPath,
			HTTPAddr:    httpAddr,
		})
		// The supervisor cannot fetch settings: the settings store is one
		// of its own children.
		rt := runtime.New(svc,
			runtime.WithBusURL(url),
			runtime.WithSkipSettings(),
		)
		return rt.Run()
	},
}

func init() {
	Cmd.Flags().StringVar(&natsURL, "nats-url", bus.DefaultURL, "bus URL")
	Cmd.Flags().StringVar(&unitsDir, "units-dir", "services", "directory scanned for unit.json manifests")
	Cmd.Flags().StringVar(&journalPath, "journal", "", "sqlite file for the status transition journal")
	Cmd.Flags().StringVar(&httpAddr, "http-addr", "", "address for the HTTP control surface")
	Cmd.Flags().BoolVar(&embeddedBus, "embedded-bus", false, "run an embedded bus broker in this process")
}
