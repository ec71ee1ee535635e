package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"grimm.is/netaudit/internal/brand"
	"grimm.is/netaudit/internal/config"
	"grimm.is/netaudit/internal/device"
	"grimm.is/netaudit/internal/gateway"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/simulator"
)

// loadConfig reads configFile. A missing file at the default location falls
// back to built-in defaults; an explicitly named file must exist.
func loadConfig(configFile string) (*config.Config, error) {
	if configFile == "" {
		configFile = brand.DefaultConfigPath()
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configFile, err)
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.LogConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:  level,
		Output: os.Stderr,
		JSON:   cfg.JSON,
	})
	logging.SetDefault(logger)
	return logger, nil
}

// simulatorDevices returns the configured simulator inventory, or the demo
// network when none is configured.
func simulatorDevices(cfg *config.Config) []device.Target {
	if len(cfg.Simulator.Devices) == 0 {
		return simulator.DemoNetwork()
	}
	return simulator.DevicesFromConfig(cfg.Simulator)
}

// openGateway connects the configured transport. The loopback transport runs
// a simulator in-process. The returned func releases everything.
func openGateway(cfg *config.Config, logger *logging.Logger) (gateway.Gateway, func(), error) {
	switch cfg.Gateway.Transport {
	case config.TransportLoopback:
		local := gateway.NewLocal()
		sim := simulator.New(local, simulator.CommandsFromConfig(cfg), simulatorDevices(cfg), cfg.Simulator.PacketsPerSecond)
		if err := sim.Register(); err != nil {
			local.Close()
			return nil, nil, err
		}
		logger.Info("Using loopback transport with simulated backend")
		return local, func() {
			sim.Close()
			local.Close()
		}, nil

	case config.TransportNATS:
		n, err := gateway.DialNATS(gateway.NATSOptions{
			URL:            cfg.Gateway.URL,
			Prefix:         cfg.Gateway.Prefix,
			RequestTimeout: cfg.Gateway.RequestTimeoutDuration(),
			Logger:         logger.WithComponent("gateway"),
		})
		if err != nil {
			return nil, nil, err
		}
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("Failed to close NATS connection", "error", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Gateway.Transport)
}
