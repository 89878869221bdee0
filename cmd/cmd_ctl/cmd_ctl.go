// Package cmd_ctl talks to a running fabric over the bus: fleet control,
// settings access and engine queries.
package cmd_ctl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/codec"
)

var natsURL string

var Cmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running fabric",
}

func init() {
	Cmd.PersistentFlags().StringVar(&natsURL, "nats-url", bus.DefaultURL, "bus URL")
}

func withClient(fn func(c *bus.Client) error) error {
	c := bus.New("fabricd-ctl", zerolog.Nop())
	if err := c.Connect(natsURL); err != nil {
		return fmt.Errorf("bus connect: %w", err)
	}
	defer c.Disconnect()
	return fn(c)
}

// sendCommand publishes a command with a reply inbox and decodes the answer.
func sendCommand(service string, args codec.Record) (codec.Record, error) {
	var result codec.Record
	err := withClient(func(c *bus.Client) error {
		data, err := args.Encode()
		if err != nil {
			return err
		}
		resp, err := c.Request("commands."+service, data, 3*time.Second)
		if err != nil {
			return err
		}
		result, err = codec.Decode(resp.Data)
		return err
	})
	return result, err
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
