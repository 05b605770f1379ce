package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/vdisplay/internal/broadcast"
	"github.com/bnema/vdisplay/internal/config"
	"github.com/bnema/vdisplay/internal/display"
	"github.com/bnema/vdisplay/internal/driver"
	"github.com/bnema/vdisplay/internal/ipc"
	"github.com/bnema/vdisplay/internal/logger"
	"github.com/bnema/vdisplay/internal/manager"
	"github.com/bnema/vdisplay/internal/virtual"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the display manager daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			config.SetConfigPath(configPath)
		}
		if err := config.Init(); err != nil {
			return err
		}
		cfg := config.Get()
		if cfg.Logging.LogLevel != "" {
			logger.SetLevel(cfg.Logging.LogLevel)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		catalog := display.NewCatalog(display.NewBackend())
		defer catalog.Close()

		bridge := driver.NewBridge(driver.NewSystemAPI(cfg.Driver.Module, cfg.Driver.SysfsPath))
		if err := bridge.Install(ctx, false); err != nil {
			// Mirror mode still works without the driver.
			logger.Warnf("Continuing without virtual display support: %v", err)
		}

		registry := virtual.NewRegistry(bridge, virtual.Options{
			NamePrefix:    cfg.Display.NamePrefix,
			MaxMonitors:   cfg.Display.MaxVirtualMonitors,
			CreateTimeout: time.Duration(cfg.Display.CreateTimeout) * time.Second,
		})

		mgr := manager.New(catalog, bridge, registry)
		defer mgr.Shutdown()

		publisher := broadcast.NewPublisher(cfg.Broadcast.Segment, cfg.Broadcast.Capacity)
		presets := display.SupportedResolutions()
		if err := publisher.Publish(presets); err != nil {
			logger.Warnf("Resolution broadcast unavailable: %v", err)
		}
		defer func() {
			if err := publisher.Remove(); err != nil {
				logger.Warnf("Failed to remove broadcast segment: %v", err)
			}
		}()

		server, err := ipc.NewSocketServer(&controlHandler{mgr: mgr, presets: presets}, cfg.IPC.Socket)
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()

		logger.Infof("vdisplay %s running with %d displays", Version, len(catalog.Monitors())-1)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			logger.Infof("Received %v, shutting down", s)
		case <-ctx.Done():
		}
		return nil
	},
}

// controlHandler answers companion-process queries from manager state.
type controlHandler struct {
	mgr     *manager.Manager
	presets []display.Resolution
}

func (h *controlHandler) HandleStatus() (*ipc.StatusResponse, error) {
	status := &ipc.StatusResponse{
		AnyVirtual: h.mgr.AnyVirtualActive(),
		Clients:    []ipc.ClientInfo{},
	}
	for _, c := range h.mgr.Clients() {
		status.Clients = append(status.Clients, ipc.ClientInfo{
			ID:      c.ID,
			Mode:    c.Mode,
			Display: c.Display,
			Devices: c.Devices,
		})
	}
	return status, nil
}

func (h *controlHandler) HandleResolutions() (*ipc.ResolutionsResponse, error) {
	return &ipc.ResolutionsResponse{Resolutions: h.presets}, nil
}
