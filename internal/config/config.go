package config

import "time"

// Default values for every setting.
const (
	DefaultLogLevel       = "info"
	DefaultListen         = ":8080"
	DefaultStatusCapacity = 5000
	DefaultToggleLimit    = 60

	TransportNATS     = "nats"
	TransportLoopback = "loopback"

	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix  = "netaudit"
	DefaultRequestTimeout = 10 * time.Second

	DefaultCommandTimeout   = 5000 * time.Millisecond
	DefaultStartJamCommand  = "start_jamming"
	DefaultStopJamCommand   = "stop_jamming"
	DefaultInventoryCommand = "get_devices"

	DefaultAllCapacity         = 5000
	DefaultInterceptedCapacity = 1000
	DefaultFlushInterval       = 200 * time.Millisecond
	DefaultStartCaptureCommand = "start_traffic_capture"
	DefaultStopCaptureCommand  = "stop_traffic_capture"
	DefaultTrafficEvent        = "traffic-event"

	DefaultSimulatorRate = 20
)

// Config is the top-level configuration.
type Config struct {
	Log       *LogConfig       `hcl:"log,block" yaml:"log" json:"log,omitempty"`
	API       *APIConfig       `hcl:"api,block" yaml:"api" json:"api,omitempty"`
	Gateway   *GatewayConfig   `hcl:"gateway,block" yaml:"gateway" json:"gateway,omitempty"`
	Jammer    *JammerConfig    `hcl:"jammer,block" yaml:"jammer" json:"jammer,omitempty"`
	Traffic   *TrafficConfig   `hcl:"traffic,block" yaml:"traffic" json:"traffic,omitempty"`
	Simulator *SimulatorConfig `hcl:"simulator,block" yaml:"simulator" json:"simulator,omitempty"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level string `hcl:"level,optional" yaml:"level" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" yaml:"json" json:"json,omitempty"`
}

// APIConfig configures the HTTP/WebSocket surface.
type APIConfig struct {
	Listen         string `hcl:"listen,optional" yaml:"listen" json:"listen,omitempty"`
	StatusCapacity int    `hcl:"status_capacity,optional" yaml:"status_capacity" json:"status_capacity,omitempty"`
	ToggleLimit    int    `hcl:"toggle_limit,optional" yaml:"toggle_limit" json:"toggle_limit,omitempty"` // toggles per client per minute
}

// GatewayConfig selects and configures the command/event transport.
type GatewayConfig struct {
	Transport      string `hcl:"transport,optional" yaml:"transport" json:"transport,omitempty"`
	URL            string `hcl:"url,optional" yaml:"url" json:"url,omitempty"`
	Prefix         string `hcl:"prefix,optional" yaml:"prefix" json:"prefix,omitempty"`
	RequestTimeout string `hcl:"request_timeout,optional" yaml:"request_timeout" json:"request_timeout,omitempty"`
}

// JammerConfig configures the jamming controller.
type JammerConfig struct {
	CommandTimeout   string `hcl:"command_timeout,optional" yaml:"command_timeout" json:"command_timeout,omitempty"`
	StartCommand     string `hcl:"start_command,optional" yaml:"start_command" json:"start_command,omitempty"`
	StopCommand      string `hcl:"stop_command,optional" yaml:"stop_command" json:"stop_command,omitempty"`
	InventoryCommand string `hcl:"inventory_command,optional" yaml:"inventory_command" json:"inventory_command,omitempty"`
	VendorDB         string `hcl:"vendor_db,optional" yaml:"vendor_db" json:"vendor_db,omitempty"` // optional gzipped vendor database
}

// TrafficConfig configures the traffic ingestion buffer.
type TrafficConfig struct {
	AllCapacity         int    `hcl:"all_capacity,optional" yaml:"all_capacity" json:"all_capacity,omitempty"`
	InterceptedCapacity int    `hcl:"intercepted_capacity,optional" yaml:"intercepted_capacity" json:"intercepted_capacity,omitempty"`
	FlushInterval       string `hcl:"flush_interval,optional" yaml:"flush_interval" json:"flush_interval,omitempty"`
	StartCommand        string `hcl:"start_command,optional" yaml:"start_command" json:"start_command,omitempty"`
	StopCommand         string `hcl:"stop_command,optional" yaml:"stop_command" json:"stop_command,omitempty"`
	Event               string `hcl:"event,optional" yaml:"event" json:"event,omitempty"`
}

// SimulatorConfig describes the in-process backend used with the loopback
// transport.
type SimulatorConfig struct {
	PacketsPerSecond int            `hcl:"packets_per_second,optional" yaml:"packets_per_second" json:"packets_per_second,omitempty"`
	Devices          []DeviceConfig `hcl:"device,block" yaml:"devices" json:"devices,omitempty"`
}

// DeviceConfig is one simulated inventory entry.
type DeviceConfig struct {
	IP        string `hcl:"ip" yaml:"ip" json:"ip"`
	MAC       string `hcl:"mac" yaml:"mac" json:"mac"`
	IsGateway bool   `hcl:"gateway,optional" yaml:"gateway" json:"gateway,omitempty"`
	Hostname  string `hcl:"hostname,optional" yaml:"hostname" json:"hostname,omitempty"`
}

// Default returns a configuration with every value populated.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills every zero value. Zero means "not set" for all fields.
func (c *Config) applyDefaults() {
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.API.StatusCapacity == 0 {
		c.API.StatusCapacity = DefaultStatusCapacity
	}
	if c.API.ToggleLimit == 0 {
		c.API.ToggleLimit = DefaultToggleLimit
	}

	if c.Gateway == nil {
		c.Gateway = &GatewayConfig{}
	}
	if c.Gateway.Transport == "" {
		c.Gateway.Transport = TransportNATS
	}
	if c.Gateway.URL == "" {
		c.Gateway.URL = DefaultNATSURL
	}
	if c.Gateway.Prefix == "" {
		c.Gateway.Prefix = DefaultSubjectPrefix
	}
	if c.Gateway.RequestTimeout == "" {
		c.Gateway.RequestTimeout = DefaultRequestTimeout.String()
	}

	if c.Jammer == nil {
		c.Jammer = &JammerConfig{}
	}
	if c.Jammer.CommandTimeout == "" {
		c.Jammer.CommandTimeout = DefaultCommandTimeout.String()
	}
	if c.Jammer.StartCommand == "" {
		c.Jammer.StartCommand = DefaultStartJamCommand
	}
	if c.Jammer.StopCommand == "" {
		c.Jammer.StopCommand = DefaultStopJamCommand
	}
	if c.Jammer.InventoryCommand == "" {
		c.Jammer.InventoryCommand = DefaultInventoryCommand
	}

	if c.Traffic == nil {
		c.Traffic = &TrafficConfig{}
	}
	if c.Traffic.AllCapacity == 0 {
		c.Traffic.AllCapacity = DefaultAllCapacity
	}
	if c.Traffic.InterceptedCapacity == 0 {
		c.Traffic.InterceptedCapacity = DefaultInterceptedCapacity
	}
	if c.Traffic.FlushInterval == "" {
		c.Traffic.FlushInterval = DefaultFlushInterval.String()
	}
	if c.Traffic.StartCommand == "" {
		c.Traffic.StartCommand = DefaultStartCaptureCommand
	}
	if c.Traffic.StopCommand == "" {
		c.Traffic.StopCommand = DefaultStopCaptureCommand
	}
	if c.Traffic.Event == "" {
		c.Traffic.Event = DefaultTrafficEvent
	}

	if c.Simulator == nil {
		c.Simulator = &SimulatorConfig{}
	}
	if c.Simulator.PacketsPerSecond == 0 {
		c.Simulator.PacketsPerSecond = DefaultSimulatorRate
	}
}

// RequestTimeoutDuration returns the parsed request timeout. Call after Validate.
func (g *GatewayConfig) RequestTimeoutDuration() time.Duration {
	return mustDuration(g.RequestTimeout, DefaultRequestTimeout)
}

// Timeout returns the parsed command timeout. Call after Validate.
func (j *JammerConfig) Timeout() time.Duration {
	return mustDuration(j.CommandTimeout, DefaultCommandTimeout)
}

// Interval returns the parsed flush interval. Call after Validate.
func (t *TrafficConfig) Interval() time.Duration {
	return mustDuration(t.FlushInterval, DefaultFlushInterval)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
