package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/vdisplay/internal/display"
)

var monitorsJSON bool

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List the current display catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := display.NewCatalog(display.NewBackend())
		defer catalog.Close()

		monitors := catalog.Monitors()

		if monitorsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(monitors)
		}

		for _, m := range monitors {
			tags := ""
			if m.Primary {
				tags += " [primary]"
			}
			if m.Virtual {
				tags += " [virtual]"
			}
			fmt.Printf("%-12s %dx%d at %d,%d%s\n", m.Name, m.Width, m.Height, m.X, m.Y, tags)
		}
		return nil
	},
}

func init() {
	monitorsCmd.Flags().BoolVar(&monitorsJSON, "json", false, "output as JSON")
}
