package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bnema/vdisplay/internal/config"
	"github.com/bnema/vdisplay/internal/driver"
	"github.com/bnema/vdisplay/internal/logger"
)

var installDriverCmd = &cobra.Command{
	Use:   "install-driver",
	Short: "Install the software display driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			config.SetConfigPath(configPath)
		}
		if err := config.Init(); err != nil {
			return err
		}
		cfg := config.Get()

		bridge := driver.NewBridge(driver.NewSystemAPI(cfg.Driver.Module, cfg.Driver.SysfsPath))
		if err := bridge.Install(cmd.Context(), true); err != nil {
			return err
		}

		logger.Infof("Driver %s ready", cfg.Driver.Module)
		return nil
	},
}
