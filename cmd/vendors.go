package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"grimm.is/netaudit/internal/brand"
	"grimm.is/netaudit/internal/device"
)

// DefaultVendorDBPath is where vendors writes when -out is not given.
func DefaultVendorDBPath() string {
	return filepath.Join(brand.GetConfigDir(), "vendors.db.gz")
}

// VendorsOptions control how the vendor database is built.
type VendorsOptions struct {
	Out      string
	Download bool
}

// RunVendors builds a vendor database and saves it for jammer.vendor_db.
func RunVendors(w io.Writer, opts VendorsOptions) error {
	out := opts.Out
	if out == "" {
		out = DefaultVendorDBPath()
	}

	var db *device.VendorDB
	if opts.Download {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintln(w, "Downloading IEEE registries...")
		start := time.Now()
		var err error
		db, err = device.BuildVendorDB(ctx, nil, device.DefaultVendorSources)
		if err != nil {
			return fmt.Errorf("failed to download vendor data: %w", err)
		}
		fmt.Fprintf(w, "Downloaded %d entries in %v\n", len(db.Entries), time.Since(start).Round(time.Millisecond))
	} else {
		db = seedVendorDB()
		fmt.Fprintf(w, "Generated seed vendor database with %d entries\n", len(db.Entries))
		fmt.Fprintln(w, "Run with -real to download the full IEEE registries")
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(out), err)
	}
	if err := db.Save(out); err != nil {
		return fmt.Errorf("failed to save vendor database: %w", err)
	}
	fmt.Fprintf(w, "Saved to %s\n", out)
	return nil
}

// seedVendorDB covers common home network hardware.
func seedVendorDB() *device.VendorDB {
	return &device.VendorDB{
		Updated: time.Now(),
		Entries: map[string]device.VendorEntry{
			// Virtual NICs
			"005056": {Manufacturer: "VMware, Inc.", Country: "US"},
			"525400": {Manufacturer: "QEMU Virtual NIC", Country: "US"},
			"080027": {Manufacturer: "Oracle VirtualBox", Country: "US"},
			// Routers and access points
			"10FE2B": {Manufacturer: "TP-Link Technologies", Country: "CN"},
			"EC3873": {Manufacturer: "TP-Link Technologies", Country: "CN"},
			"24A43C": {Manufacturer: "Ubiquiti Inc", Country: "US"},
			"F09FC2": {Manufacturer: "Ubiquiti Inc", Country: "US"},
			"20E52A": {Manufacturer: "Netgear", Country: "US"},
			"A00460": {Manufacturer: "Netgear", Country: "US"},
			"00233F": {Manufacturer: "Cisco Systems", Country: "US"},
			"048D38": {Manufacturer: "ASUS", Country: "TW"},
			// Phones, laptops and printers
			"A4C361": {Manufacturer: "Apple, Inc.", Country: "US"},
			"F0B479": {Manufacturer: "Apple, Inc.", Country: "US"},
			"84250D": {Manufacturer: "Samsung Electronics", Country: "KR"},
			"3C5AB4": {Manufacturer: "Google, Inc.", Country: "US"},
			"48452B": {Manufacturer: "Intel Corporate", Country: "US"},
			"B083FE": {Manufacturer: "Dell Inc.", Country: "US"},
			"A0D3C1": {Manufacturer: "Hewlett Packard", Country: "US"},
			// IoT
			"B827EB": {Manufacturer: "Raspberry Pi Foundation", Country: "GB"},
			"DCA632": {Manufacturer: "Raspberry Pi Trading Ltd", Country: "GB"},
			"68D691": {Manufacturer: "Amazon Technologies", Country: "US"},
			"B8E937": {Manufacturer: "Sonos, Inc.", Country: "US"},
			"24B2DE": {Manufacturer: "Espressif Inc.", Country: "CN"},
			"A4CF12": {Manufacturer: "Espressif Inc.", Country: "CN"},
		},
	}
}
