package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configPath string

	rootCmd = &cobra.Command{
		Use:   "vdisplay",
		Short: "vdisplay - virtual display manager for remote viewers",
		Long: `vdisplay manages the display surfaces a multi-user remote-access host
exposes to its viewers. It creates and tears down software-emulated
monitors per client, switches between mirror, virtual, and extend
strategies, and restores the hardware configuration when the last
viewer disconnects.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorsCmd)
	rootCmd.AddCommand(installDriverCmd)
	rootCmd.AddCommand(statusCmd)
}
