// Package jammer coordinates the start and stop of jamming against targets
// on the local network.
//
// Each target moves between Inactive, Pending and Active. A toggle validates
// the target against the current inventory, marks it Pending, issues exactly
// one start or stop command raced against a timeout, and clears Pending when
// the command settles. Failures are reported through a StatusSink and never
// returned to the caller.
package jammer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"grimm.is/netaudit/internal/config"
	"grimm.is/netaudit/internal/device"
	"grimm.is/netaudit/internal/events"
	"grimm.is/netaudit/internal/gateway"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/metrics"
)

// StatusSink receives human-readable status lines keyed by address.
type StatusSink interface {
	AddLog(address, message string)
}

// State is the jam state of one target.
type State int

const (
	Inactive State = iota
	Pending
	Active
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "inactive"
	}
}

// StartArgs is the start command payload. The gateway address is sent under
// both keys for backend compatibility.
type StartArgs struct {
	IP              string `json:"ip"`
	MAC             string `json:"mac"`
	GatewayIP       string `json:"gatewayIp"`
	GatewayIPCompat string `json:"gateway_ip"`
}

// StopArgs is the stop command payload.
type StopArgs struct {
	IP string `json:"ip"`
}

// Status is the read state exposed to the presentation layer.
type Status struct {
	JammedDevices     []string `json:"jammedDevices"`
	JamPendingDevices []string `json:"jamPendingDevices"`
}

// entry is the authoritative record for one address. jammed reflects the
// last successful command; pending is set while a command is in flight.
type entry struct {
	jammed  bool
	pending bool
}

// Controller owns the jam state of every target.
type Controller struct {
	gw      gateway.Gateway
	sink    StatusSink
	logger  *logging.Logger
	hub     *events.Hub
	metrics *metrics.Registry

	timeout  time.Duration
	startCmd string
	stopCmd  string

	mu      sync.Mutex
	targets map[string]*entry
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout sets the command race timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCommands overrides the start and stop command names.
func WithCommands(start, stop string) Option {
	return func(c *Controller) {
		if start != "" {
			c.startCmd = start
		}
		if stop != "" {
			c.stopCmd = stop
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithHub publishes state transitions on hub.
func WithHub(h *events.Hub) Option {
	return func(c *Controller) { c.hub = h }
}

// FromConfig applies the jammer block of cfg.
func FromConfig(cfg *config.JammerConfig) Option {
	return func(c *Controller) {
		WithTimeout(cfg.Timeout())(c)
		WithCommands(cfg.StartCommand, cfg.StopCommand)(c)
	}
}

// NewController creates a controller issuing commands through gw.
func NewController(gw gateway.Gateway, sink StatusSink, opts ...Option) *Controller {
	c := &Controller{
		gw:       gw,
		sink:     sink,
		metrics:  metrics.Get(),
		timeout:  config.DefaultCommandTimeout,
		startCmd: config.DefaultStartJamCommand,
		stopCmd:  config.DefaultStopJamCommand,
		targets:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.WithComponent("jammer")
	}
	return c
}

// ToggleJammer starts jamming address if it is inactive, or stops it if it
// is active. devices is the inventory snapshot at the time of the call.
func (c *Controller) ToggleJammer(ctx context.Context, address string, devices []device.Target) {
	c.mu.Lock()

	if e := c.targets[address]; e != nil && e.pending {
		c.mu.Unlock()
		c.reject(address, "pending", fmt.Sprintf("%s command already in flight for %s, ignoring toggle", logging.PrefixWarn, address))
		return
	}

	target, ok := device.FindByIP(devices, address)
	if !ok {
		c.mu.Unlock()
		c.metrics.JamRejections.WithLabelValues("unknown_target").Inc()
		c.logger.Error("Toggle requested for a target missing from the inventory", "ip", address, "devices", len(devices))
		return
	}

	gw, ok := device.FindGateway(devices)
	if !ok {
		c.mu.Unlock()
		c.reject(address, "no_gateway", fmt.Sprintf("%s no gateway in the inventory, cannot jam %s", logging.PrefixError, address))
		return
	}

	if device.IsProtected(target, gw) {
		c.mu.Unlock()
		c.reject(address, "gateway", fmt.Sprintf("%s %s is the network gateway and cannot be jammed", logging.PrefixBlocked, address))
		return
	}

	if !device.ValidMAC(target.MAC) {
		c.mu.Unlock()
		c.reject(address, "invalid_mac", fmt.Sprintf("%s invalid hardware address %q for %s", logging.PrefixError, target.MAC, address))
		return
	}

	e := c.targets[address]
	if e == nil {
		e = &entry{}
		c.targets[address] = e
	}
	e.pending = true
	wasJammed := e.jammed
	c.mu.Unlock()
	c.publishState()

	defer func() {
		c.mu.Lock()
		e.pending = false
		if !e.jammed {
			delete(c.targets, address)
		}
		c.mu.Unlock()
		c.publishState()
	}()

	if wasJammed {
		c.stop(ctx, e, target)
	} else {
		c.start(ctx, e, target, gw)
	}
}

func (c *Controller) start(ctx context.Context, e *entry, target, gw device.Target) {
	args := StartArgs{
		IP:              target.IP,
		MAC:             target.MAC,
		GatewayIP:       gw.IP,
		GatewayIPCompat: gw.IP,
	}

	err := gateway.InvokeTimeout(ctx, c.gw, c.timeout, c.startCmd, target.IP, args, nil)
	c.countCommand(c.startCmd, err)
	if err != nil {
		c.sink.AddLog(target.IP, fmt.Sprintf("%s failed to start jamming %s: %v", logging.PrefixError, target.IP, err))
		return
	}

	c.mu.Lock()
	e.jammed = true
	c.mu.Unlock()

	c.logger.Audit("jam.start", target.IP, map[string]any{"mac": target.MAC, "gateway": gw.IP})
	c.sink.AddLog(target.IP, fmt.Sprintf("jamming active on %s (%s), spoofing gateway %s", target.IP, target.MAC, gw.IP))
}

func (c *Controller) stop(ctx context.Context, e *entry, target device.Target) {
	err := gateway.InvokeTimeout(ctx, c.gw, c.timeout, c.stopCmd, target.IP, StopArgs{IP: target.IP}, nil)
	c.countCommand(c.stopCmd, err)
	if err != nil {
		// Backend state is unknown; the target stays marked jammed.
		c.sink.AddLog(target.IP, fmt.Sprintf("%s failed to stop jamming %s: %v", logging.PrefixError, target.IP, err))
		return
	}

	c.mu.Lock()
	e.jammed = false
	c.mu.Unlock()

	c.logger.Audit("jam.stop", target.IP, nil)
	c.sink.AddLog(target.IP, fmt.Sprintf("jamming stopped on %s", target.IP))
}

// ReleaseAll toggles every active target off. Each toggle is subject to the
// same gates as ToggleJammer.
func (c *Controller) ReleaseAll(ctx context.Context, devices []device.Target) {
	for _, ip := range c.Jammed() {
		c.ToggleJammer(ctx, ip, devices)
	}
}

// State returns the current state of address.
func (c *Controller) State(address string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.targets[address]
	switch {
	case e == nil:
		return Inactive
	case e.pending:
		return Pending
	case e.jammed:
		return Active
	}
	return Inactive
}

// Jammed returns the sorted addresses currently marked jammed.
func (c *Controller) Jammed() []string {
	return c.Status().JammedDevices
}

// Pending returns the sorted addresses with a command in flight.
func (c *Controller) Pending() []string {
	return c.Status().JamPendingDevices
}

// Status returns a copy of the jammed and pending sets.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		JammedDevices:     []string{},
		JamPendingDevices: []string{},
	}
	for ip, e := range c.targets {
		if e.jammed {
			s.JammedDevices = append(s.JammedDevices, ip)
		}
		if e.pending {
			s.JamPendingDevices = append(s.JamPendingDevices, ip)
		}
	}
	sort.Strings(s.JammedDevices)
	sort.Strings(s.JamPendingDevices)
	return s
}

func (c *Controller) reject(address, reason, message string) {
	c.metrics.JamRejections.WithLabelValues(reason).Inc()
	c.sink.AddLog(address, message)
}

func (c *Controller) countCommand(command string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, gateway.ErrTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	c.metrics.JamCommands.WithLabelValues(command, result).Inc()
}

func (c *Controller) publishState() {
	s := c.Status()
	c.metrics.JamActive.Set(float64(len(s.JammedDevices)))
	c.metrics.JamPending.Set(float64(len(s.JamPendingDevices)))
	if c.hub != nil {
		c.hub.EmitJamState(s.JammedDevices, s.JamPendingDevices)
	}
}
