package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate validates the entire configuration. Defaults must already be applied.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateGateway()...)
	errs = append(errs, c.validateJammer()...)
	errs = append(errs, c.validateTraffic()...)
	errs = append(errs, c.validateSimulator()...)

	return errs
}

func (c *Config) validateLog() ValidationErrors {
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return ValidationErrors{{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}}
}

func (c *Config) validateAPI() ValidationErrors {
	var errs ValidationErrors
	if c.API.StatusCapacity < 0 {
		errs = append(errs, ValidationError{Field: "api.status_capacity", Message: "must be positive"})
	}
	if c.API.ToggleLimit < 0 {
		errs = append(errs, ValidationError{Field: "api.toggle_limit", Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateGateway() ValidationErrors {
	var errs ValidationErrors
	switch c.Gateway.Transport {
	case TransportNATS, TransportLoopback:
	default:
		errs = append(errs, ValidationError{Field: "gateway.transport", Message: fmt.Sprintf("must be %q or %q", TransportNATS, TransportLoopback)})
	}
	if strings.ContainsAny(c.Gateway.Prefix, " *>") {
		errs = append(errs, ValidationError{Field: "gateway.prefix", Message: "must not contain spaces or NATS wildcards"})
	}
	errs = append(errs, validateDuration("gateway.request_timeout", c.Gateway.RequestTimeout)...)
	return errs
}

func (c *Config) validateJammer() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, validateDuration("jammer.command_timeout", c.Jammer.CommandTimeout)...)
	if c.Jammer.StartCommand == c.Jammer.StopCommand {
		errs = append(errs, ValidationError{Field: "jammer.stop_command", Message: "must differ from start_command"})
	}
	return errs
}

func (c *Config) validateTraffic() ValidationErrors {
	var errs ValidationErrors
	if c.Traffic.AllCapacity < 0 {
		errs = append(errs, ValidationError{Field: "traffic.all_capacity", Message: "must be positive"})
	}
	if c.Traffic.InterceptedCapacity < 0 {
		errs = append(errs, ValidationError{Field: "traffic.intercepted_capacity", Message: "must be positive"})
	}
	errs = append(errs, validateDuration("traffic.flush_interval", c.Traffic.FlushInterval)...)
	if c.Traffic.StartCommand == c.Traffic.StopCommand {
		errs = append(errs, ValidationError{Field: "traffic.stop_command", Message: "must differ from start_command"})
	}
	return errs
}

func (c *Config) validateSimulator() ValidationErrors {
	var errs ValidationErrors
	if c.Simulator.PacketsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "simulator.packets_per_second", Message: "must be positive"})
	}
	for i, d := range c.Simulator.Devices {
		field := fmt.Sprintf("simulator.device[%d]", i)
		if net.ParseIP(d.IP) == nil {
			errs = append(errs, ValidationError{Field: field + ".ip", Message: fmt.Sprintf("invalid address %q", d.IP)})
		}
		if !macPattern.MatchString(d.MAC) {
			errs = append(errs, ValidationError{Field: field + ".mac", Message: fmt.Sprintf("invalid hardware address %q", d.MAC)})
		}
	}
	return errs
}

func validateDuration(field, value string) ValidationErrors {
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("invalid duration %q", value)}}
	}
	if d <= 0 {
		return ValidationErrors{{Field: field, Message: "must be positive"}}
	}
	return nil
}
