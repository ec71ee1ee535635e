package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/netaudit/cmd"
	"grimm.is/netaudit/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		// Run the control plane and API server
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", "", "Configuration file (default "+brand.DefaultConfigPath()+")")
		serveFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		listen := serveFlags.String("listen", "", "API listen address (overrides api.listen)")
		loopback := serveFlags.Bool("loopback", false, "Use the in-process simulated backend instead of NATS")
		serveFlags.Parse(os.Args[2:])

		if err := cmd.RunServe(cmd.ServeOptions{
			ConfigFile: *configFile,
			Listen:     *listen,
			Loopback:   *loopback,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "simulate":
		// Serve a simulated backend over NATS
		simFlags := flag.NewFlagSet("simulate", flag.ExitOnError)
		configFile := simFlags.String("config", "", "Configuration file")
		simFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		simFlags.Parse(os.Args[2:])

		if err := cmd.RunSimulate(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Simulate failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		// Validate configuration
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("v", false, "Verbose output (show resolved settings)")
		checkFlags.Parse(os.Args[2:])

		if err := cmd.RunCheck(os.Stdout, checkFlags.Arg(0), *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "vendors":
		// Build the MAC vendor database
		vendorFlags := flag.NewFlagSet("vendors", flag.ExitOnError)
		out := vendorFlags.String("out", "", "Output file (default "+cmd.DefaultVendorDBPath()+")")
		useReal := vendorFlags.Bool("real", false, "Download real IEEE registry data (slow, requires network)")
		vendorFlags.Parse(os.Args[2:])

		if err := cmd.RunVendors(os.Stdout, cmd.VendorsOptions{Out: *out, Download: *useReal}); err != nil {
			fmt.Fprintf(os.Stderr, "Vendors failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		fmt.Printf("%s version %s\n", brand.Name, brand.Version)
		fmt.Printf("Commit: %s\n", brand.GitCommit)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  serve      Run the control plane and API server
  simulate   Serve a simulated backend over NATS
  check      Validate a configuration file
  vendors    Build the MAC vendor database
  version    Print version information

Run '%s <command> -h' for command options.
`, brand.Name, brand.Description, brand.LowerName, brand.LowerName)
}
