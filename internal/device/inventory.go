package device

import (
	"context"
	"fmt"

	"grimm.is/netaudit/internal/gateway"
)

// Inventory supplies the current device snapshot. Implementations must not
// cache across calls; every toggle sees a fresh view.
type Inventory interface {
	Devices(ctx context.Context) ([]Target, error)
}

// GatewayInventory fetches devices with a backend command.
type GatewayInventory struct {
	gw      gateway.Gateway
	command string
	vendors *VendorDB
}

// NewGatewayInventory creates an inventory backed by command.
func NewGatewayInventory(gw gateway.Gateway, command string) *GatewayInventory {
	return &GatewayInventory{gw: gw, command: command}
}

// WithVendors fills missing vendor names from db.
func (i *GatewayInventory) WithVendors(db *VendorDB) *GatewayInventory {
	i.vendors = db
	return i
}

// Devices implements Inventory.
func (i *GatewayInventory) Devices(ctx context.Context) ([]Target, error) {
	var devices []Target
	if err := i.gw.Invoke(ctx, i.command, nil, &devices); err != nil {
		return nil, fmt.Errorf("failed to fetch inventory: %w", err)
	}
	i.vendors.Enrich(devices)
	return devices, nil
}

// Static is a fixed inventory.
type Static []Target

// Devices implements Inventory. The returned slice is a copy.
func (s Static) Devices(context.Context) ([]Target, error) {
	out := make([]Target, len(s))
	copy(out, s)
	return out, nil
}
