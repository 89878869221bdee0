// Package cmd_settings runs the settings store.
package cmd_settings

import (
	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/runtime"
	"github.com/GregAscolab/python-microservice-test/settings"
	"github.com/GregAscolab/python-microservice-test/servs/s_settings/settings_serv"
)

var (
	natsURL string
	file    string
)

var Cmd = &cobra.Command{
	Use:   "settings",
	Short: "Run the settings store",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := natsURL
		// The store serves settings, it cannot fetch them. It does honor a
		// global.nats_url in its own file.
		if doc, err := settings.Load(file); err == nil {
			url = doc.String("global.nats_url", url)
		}

		rt := runtime.New(settings_serv.New(file),
			runtime.WithBusURL(url),
			runtime.WithSkipSettings(),
		)
		return rt.Run()
	},
}

func init() {
	Cmd.Flags().StringVar(&natsURL, "nats-url", bus.DefaultURL, "bus URL")
	Cmd.Flags().StringVar(&file, "file", "settings/settings.json", "settings document path")
}
