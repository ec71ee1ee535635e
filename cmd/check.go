package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"grimm.is/netaudit/internal/brand"
	"grimm.is/netaudit/internal/config"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(w io.Writer, configFile string, verbose bool) error {
	if configFile == "" {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s",
			brand.LowerName, brand.LowerName, brand.DefaultConfigPath())
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Fprintf(w, "Configuration valid!\n")
	fmt.Fprintf(w, "Transport: %s\n", cfg.Gateway.Transport)
	fmt.Fprintf(w, "Simulated devices: %d\n", len(cfg.Simulator.Devices))

	if verbose {
		fmt.Fprintln(w)
		printSummary(w, cfg)
	}
	return nil
}

func printSummary(out io.Writer, cfg *config.Config) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "SETTING\tVALUE\n")
	fmt.Fprintf(w, "api.listen\t%s\n", cfg.API.Listen)
	fmt.Fprintf(w, "api.toggle_limit\t%d/min\n", cfg.API.ToggleLimit)
	fmt.Fprintf(w, "gateway.url\t%s\n", cfg.Gateway.URL)
	fmt.Fprintf(w, "gateway.prefix\t%s\n", cfg.Gateway.Prefix)
	fmt.Fprintf(w, "jammer.command_timeout\t%s\n", cfg.Jammer.Timeout())
	fmt.Fprintf(w, "jammer.commands\t%s / %s\n", cfg.Jammer.StartCommand, cfg.Jammer.StopCommand)
	if cfg.Jammer.VendorDB != "" {
		fmt.Fprintf(w, "jammer.vendor_db\t%s\n", cfg.Jammer.VendorDB)
	}
	fmt.Fprintf(w, "traffic.capacity\t%d all / %d intercepted\n", cfg.Traffic.AllCapacity, cfg.Traffic.InterceptedCapacity)
	fmt.Fprintf(w, "traffic.flush_interval\t%s\n", cfg.Traffic.Interval())
	fmt.Fprintf(w, "traffic.event\t%s\n", cfg.Traffic.Event)
	for _, d := range cfg.Simulator.Devices {
		role := "host"
		if d.IsGateway {
			role = "gateway"
		}
		fmt.Fprintf(w, "simulator.device\t%s %s (%s)\n", d.IP, d.MAC, role)
	}
}
