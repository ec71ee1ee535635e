package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/netaudit/internal/gateway"
	"grimm.is/netaudit/internal/simulator"
)

// RunSimulate serves a simulated backend on the configured NATS server until
// SIGINT or SIGTERM.
func RunSimulate(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}

	n, err := gateway.DialNATS(gateway.NATSOptions{
		URL:            cfg.Gateway.URL,
		Prefix:         cfg.Gateway.Prefix,
		RequestTimeout: cfg.Gateway.RequestTimeoutDuration(),
		Logger:         logger.WithComponent("gateway"),
	})
	if err != nil {
		return err
	}
	defer n.Close()

	sim := simulator.New(n, simulator.CommandsFromConfig(cfg), simulatorDevices(cfg), cfg.Simulator.PacketsPerSecond)
	if err := sim.Register(); err != nil {
		return err
	}
	defer sim.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Simulated backend ready", "url", cfg.Gateway.URL, "prefix", cfg.Gateway.Prefix)
	<-ctx.Done()
	logger.Info("Simulated backend stopping")
	return nil
}
