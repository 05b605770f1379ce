package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/vdisplay/internal/config"
	"github.com/bnema/vdisplay/internal/ipc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			config.SetConfigPath(configPath)
		}
		if err := config.Init(); err != nil {
			return err
		}

		client, err := ipc.Connect(config.Get().IPC.Socket)
		if err != nil {
			return err
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Virtual devices active: %v\n", status.AnyVirtual)
		if len(status.Clients) == 0 {
			fmt.Println("No viewers connected")
			return nil
		}
		for _, c := range status.Clients {
			fmt.Printf("  client %d: %s", c.ID, c.Mode)
			if c.Display != "" {
				fmt.Printf(" (display %s)", c.Display)
			}
			for _, d := range c.Devices {
				fmt.Printf(" %s", d)
			}
			fmt.Println()
		}
		return nil
	},
}
