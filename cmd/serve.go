package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grimm.is/netaudit/internal/api"
	"grimm.is/netaudit/internal/config"
	"grimm.is/netaudit/internal/device"
	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/health"
	"grimm.is/netaudit/internal/jammer"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/traffic"
)

// ServeOptions are the command line overrides for serve.
type ServeOptions struct {
	ConfigFile string
	Listen     string
	Loopback   bool
}

// RunServe runs the control plane until SIGINT or SIGTERM.
func RunServe(opts ServeOptions) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Loopback {
		cfg.Gateway.Transport = config.TransportLoopback
	}
	if opts.Listen != "" {
		cfg.API.Listen = opts.Listen
	}

	logger, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeGateway, err := openGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	hub := events.NewHub()
	status := logging.NewStatusLog(cfg.API.StatusCapacity, logger.WithComponent("status"), hub)

	ctrl := jammer.NewController(gw, status,
		jammer.FromConfig(cfg.Jammer),
		jammer.WithHub(hub),
		jammer.WithLogger(logger.WithComponent("jammer")),
	)
	mon := traffic.NewMonitor(gw, status,
		traffic.FromConfig(cfg.Traffic),
		traffic.WithTimeout(cfg.Jammer.Timeout()),
		traffic.WithHub(hub),
		traffic.WithLogger(logger.WithComponent("traffic")),
	)
	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Close()

	inventory := device.NewGatewayInventory(gw, cfg.Jammer.InventoryCommand)
	if path := cfg.Jammer.VendorDB; path != "" {
		db, err := device.LoadVendorFile(path)
		if err != nil {
			// Vendor names are cosmetic; serve without them.
			logger.Warn("Vendor database unavailable", "path", path, "error", err)
		} else {
			logger.Info("Loaded vendor database", "path", path, "entries", len(db.Entries))
			inventory.WithVendors(db)
		}
	}

	checker := health.NewChecker(health.DefaultTTL)
	checker.Register("backend", health.BackendCheck(inventory, cfg.Jammer.Timeout()))
	if conn, ok := gw.(health.Connector); ok {
		checker.Register("transport", health.ConnectionCheck(conn))
	}

	server, err := api.NewServer(api.ServerOptions{
		Jammer:    ctrl,
		Monitor:   mon,
		Inventory: inventory,
		Logs:      status.Buffer(),
		Hub:       hub,
		Health:    checker,
		Logger:    logger.WithComponent("api"),

		ToggleLimit: cfg.API.ToggleLimit,
	})
	if err != nil {
		return err
	}

	logger.Info("Control plane starting", "listen", cfg.API.Listen, "transport", cfg.Gateway.Transport)
	serveErr := server.Start(ctx, cfg.API.Listen)

	shutdown(logger, ctrl, mon, inventory, cfg.Jammer.Timeout())

	if serveErr != nil {
		return fmt.Errorf("api server: %w", serveErr)
	}
	return nil
}

// shutdown releases every jammed target and ends a running capture so the
// backend is not left acting on a control plane that has gone away.
func shutdown(logger *logging.Logger, ctrl *jammer.Controller, mon *traffic.Monitor, inventory device.Inventory, timeout time.Duration) {
	jammed := ctrl.Jammed()
	if len(jammed) == 0 && !mon.Active() {
		return
	}

	// Leave room for the inventory request, one command per target and the capture stop
	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(len(jammed)+2))
	defer cancel()

	if len(jammed) > 0 {
		devices, err := inventory.Devices(ctx)
		if err != nil {
			logger.Error("Cannot release jammed targets, inventory unavailable", "targets", jammed, "error", err)
		} else {
			logger.Info("Releasing jammed targets", "targets", jammed)
			ctrl.ReleaseAll(ctx, devices)
			if left := ctrl.Jammed(); len(left) > 0 {
				logger.Warn("Some targets could not be released", "targets", left)
			}
		}
	}

	if mon.Active() {
		mon.ToggleMonitoring(ctx)
	}
}
