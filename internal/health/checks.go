package health

import (
	"context"
	"fmt"
	"time"

	"grimm.is/netaudit/internal/device"
)

// Connector reports whether a transport currently has a live connection.
type Connector interface {
	Connected() bool
}

// ConnectionCheck reports the transport link. A dropped link is degraded
// because the transport keeps reconnecting.
func ConnectionCheck(conn Connector) CheckFunc {
	return func(context.Context) Check {
		if conn.Connected() {
			return Check{Status: StatusHealthy, Message: "connected"}
		}
		return Check{Status: StatusDegraded, Message: "disconnected, reconnecting"}
	}
}

// BackendCheck asks the backend for its inventory within timeout.
func BackendCheck(inv device.Inventory, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		devices, err := inv.Devices(ctx)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("inventory failed: %v", err)}
		}
		status := StatusHealthy
		msg := fmt.Sprintf("%d devices", len(devices))
		if _, ok := device.FindGateway(devices); !ok {
			status = StatusDegraded
			msg += ", no gateway"
		}
		return Check{Status: status, Message: msg}
	}
}
