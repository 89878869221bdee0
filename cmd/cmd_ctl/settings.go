package cmd_ctl

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/servs/s_settings/settings_serv"
)

// getCmd reads the whole tree ("all") or one top-level section
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read settings (use 'all' for the whole tree)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bus.Client) error {
			resp, err := c.Request("settings.get."+args[0], nil, 3*time.Second)
			if err != nil {
				return err
			}
			doc, err := codec.Decode(resp.Data)
			if err != nil {
				return err
			}
			return printJSON(doc)
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update one setting by dotted path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := sendCommand(settings_serv.ServiceName, codec.Record{
			"command": "update_setting",
			"key":     args[0],
			"value":   args[1],
		})
		if err != nil {
			return err
		}
		if result.GetString("status") != "ok" {
			return fmt.Errorf("%s", result.GetString("message"))
		}
		fmt.Println("ok")
		return nil
	},
}

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List available settings files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bus.Client) error {
			resp, err := c.Request("settings.list_configs", nil, 3*time.Second)
			if err != nil {
				return err
			}
			fmt.Println(string(resp.Data))
			return nil
		})
	},
}

func init() {
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(configsCmd)
}
