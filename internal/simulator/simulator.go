// Package simulator is a stand-in backend for development without a capture
// host. It serves the jamming, capture and inventory commands on a
// gateway.Backend and emits synthetic traffic while a capture runs.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"grimm.is/netaudit/internal/clock"
	"grimm.is/netaudit/internal/config"
	"grimm.is/netaudit/internal/device"
	"grimm.is/netaudit/internal/gateway"
	"grimm.is/netaudit/internal/jammer"
	"grimm.is/netaudit/internal/logging"
	"grimm.is/netaudit/internal/traffic"
)

var (
	ErrNotJammed      = errors.New("target is not jammed")
	ErrGatewayTarget  = errors.New("refusing to jam the gateway")
	ErrUnknownDevice  = errors.New("unknown device")
	ErrMissingAddress = errors.New("missing ip or mac")
)

var protocols = []string{"TCP", "UDP", "DNS", "HTTP", "TLS", "ARP", "ICMP"}

// Commands names the commands the simulator answers.
type Commands struct {
	StartJam     string
	StopJam      string
	StartCapture string
	StopCapture  string
	Inventory    string
	Event        string
}

// DefaultCommands returns the stock command names.
func DefaultCommands() Commands {
	return Commands{
		StartJam:     config.DefaultStartJamCommand,
		StopJam:      config.DefaultStopJamCommand,
		StartCapture: config.DefaultStartCaptureCommand,
		StopCapture:  config.DefaultStopCaptureCommand,
		Inventory:    config.DefaultInventoryCommand,
		Event:        config.DefaultTrafficEvent,
	}
}

// CommandsFromConfig takes command names from the jammer and traffic blocks.
func CommandsFromConfig(cfg *config.Config) Commands {
	return Commands{
		StartJam:     cfg.Jammer.StartCommand,
		StopJam:      cfg.Jammer.StopCommand,
		StartCapture: cfg.Traffic.StartCommand,
		StopCapture:  cfg.Traffic.StopCommand,
		Inventory:    cfg.Jammer.InventoryCommand,
		Event:        cfg.Traffic.Event,
	}
}

// DevicesFromConfig converts the simulator device blocks to targets.
func DevicesFromConfig(cfg *config.SimulatorConfig) []device.Target {
	out := make([]device.Target, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		out = append(out, device.Target{
			IP:        d.IP,
			MAC:       d.MAC,
			IsGateway: d.IsGateway,
			Hostname:  d.Hostname,
		})
	}
	return out
}

// Simulator answers backend commands from an in-memory network.
type Simulator struct {
	backend  gateway.Backend
	commands Commands
	devices  []device.Target
	rate     int
	clock    clock.Clock
	logger   *logging.Logger

	mu      sync.Mutex
	jammed  map[string]bool
	nextID  uint64
	rng     *rand.Rand
	stopCh  chan struct{}
	running sync.WaitGroup
}

// New creates a simulator over devices emitting rate packets per second
// while capturing.
func New(backend gateway.Backend, commands Commands, devices []device.Target, rate int) *Simulator {
	if rate <= 0 {
		rate = config.DefaultSimulatorRate
	}
	return &Simulator{
		backend:  backend,
		commands: commands,
		devices:  append([]device.Target(nil), devices...),
		rate:     rate,
		clock:    clock.Default,
		logger:   logging.WithComponent("simulator"),
		jammed:   make(map[string]bool),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetClock replaces the clock driving the emitter. Call before Register.
func (s *Simulator) SetClock(c clock.Clock) {
	s.clock = c
}

// Register installs the command handlers on the backend.
func (s *Simulator) Register() error {
	handlers := map[string]gateway.CommandFunc{
		s.commands.Inventory:    s.handleDevices,
		s.commands.StartJam:     s.handleStartJam,
		s.commands.StopJam:      s.handleStopJam,
		s.commands.StartCapture: s.handleStartCapture,
		s.commands.StopCapture:  s.handleStopCapture,
	}
	for name, fn := range handlers {
		if err := s.backend.Handle(name, fn); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	s.logger.Info("Simulator registered", "devices", len(s.devices), "rate", s.rate)
	return nil
}

func (s *Simulator) handleDevices(context.Context, json.RawMessage) (any, error) {
	return append([]device.Target(nil), s.devices...), nil
}

func (s *Simulator) handleStartJam(_ context.Context, raw json.RawMessage) (any, error) {
	var args jammer.StartArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.IP == "" || args.MAC == "" {
		return nil, ErrMissingAddress
	}
	t, ok := device.FindByIP(s.devices, args.IP)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, args.IP)
	}
	if t.IsGateway {
		return nil, ErrGatewayTarget
	}

	s.mu.Lock()
	s.jammed[args.IP] = true
	s.mu.Unlock()
	s.logger.Info("Jamming target", "ip", args.IP, "mac", args.MAC, "gateway", args.GatewayIP)
	return nil, nil
}

func (s *Simulator) handleStopJam(_ context.Context, raw json.RawMessage) (any, error) {
	var args jammer.StopArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.jammed[args.IP] {
		return nil, fmt.Errorf("%w: %s", ErrNotJammed, args.IP)
	}
	delete(s.jammed, args.IP)
	s.logger.Info("Released target", "ip", args.IP)
	return nil, nil
}

func (s *Simulator) handleStartCapture(context.Context, json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil, nil
	}

	s.stopCh = make(chan struct{})
	ticker := s.clock.NewTicker(time.Second / time.Duration(s.rate))
	s.running.Add(1)
	go s.emit(ticker, s.stopCh)
	s.logger.Info("Capture started", "event", s.commands.Event)
	return nil, nil
}

func (s *Simulator) handleStopCapture(context.Context, json.RawMessage) (any, error) {
	s.stopCapture()
	return nil, nil
}

func (s *Simulator) stopCapture() {
	s.mu.Lock()
	ch := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if ch != nil {
		close(ch)
		s.running.Wait()
		s.logger.Info("Capture stopped")
	}
}

// Capturing reports whether the emitter is running.
func (s *Simulator) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Jammed reports whether ip is currently jammed.
func (s *Simulator) Jammed(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jammed[ip]
}

// Close stops any running capture.
func (s *Simulator) Close() {
	s.stopCapture()
}

func (s *Simulator) emit(ticker clock.Ticker, stop <-chan struct{}) {
	defer s.running.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			p, ok := s.nextPacket()
			if !ok {
				continue
			}
			if err := s.backend.Emit(s.commands.Event, p); err != nil {
				s.logger.Warn("Failed to emit traffic event", "error", err)
			}
		}
	}
}

// nextPacket builds a packet between two random inventory members. It is
// intercepted when either end is jammed.
func (s *Simulator) nextPacket() (traffic.Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.devices) < 2 {
		return traffic.Packet{}, false
	}
	n := len(s.devices)
	i := s.rng.Intn(n)
	src := s.devices[i]
	dst := s.devices[(i+1+s.rng.Intn(n-1))%n]
	proto := protocols[s.rng.Intn(len(protocols))]
	length := 60 + s.rng.Intn(1440)

	s.nextID++
	return traffic.Packet{
		ID:            s.nextID,
		Timestamp:     s.clock.Now().UnixMilli(),
		SourceIP:      src.IP,
		DestinationIP: dst.IP,
		Protocol:      proto,
		Length:        length,
		Info:          fmt.Sprintf("%s %s > %s len=%d", proto, src.IP, dst.IP, length),
		IsIntercepted: s.jammed[src.IP] || s.jammed[dst.IP],
	}, true
}

// DemoNetwork is the inventory used when no simulator devices are configured.
func DemoNetwork() []device.Target {
	return []device.Target{
		{IP: "192.168.1.1", MAC: "AA:AA:AA:AA:AA:AA", IsGateway: true, Hostname: "router"},
		{IP: "192.168.1.20", MAC: "BB:BB:BB:BB:BB:BB", Hostname: "laptop"},
		{IP: "192.168.1.21", MAC: "CC:CC:CC:CC:CC:CC", Hostname: "phone"},
		{IP: "192.168.1.30", MAC: "DD:DD:DD:DD:DD:DD", Hostname: "printer"},
	}
}
