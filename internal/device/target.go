// Package device models the targets the jammer acts on and resolves them
// from a backend inventory.
package device

import (
	"regexp"
	"strings"
)

// macPattern is the canonical six-octet hex form, colon or hyphen separated.
var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// Target is one device on the local network.
type Target struct {
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	IsGateway bool   `json:"isGateway"`
	Hostname  string `json:"hostname,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
}

// ValidMAC reports whether mac is a canonical hardware address.
func ValidMAC(mac string) bool {
	return macPattern.MatchString(mac)
}

// FindByIP returns the device with the given address.
func FindByIP(devices []Target, ip string) (Target, bool) {
	for _, d := range devices {
		if d.IP == ip {
			return d, true
		}
	}
	return Target{}, false
}

// FindGateway returns the first device flagged as the gateway.
func FindGateway(devices []Target) (Target, bool) {
	for _, d := range devices {
		if d.IsGateway {
			return d, true
		}
	}
	return Target{}, false
}

// IsProtected reports whether t is the gateway, by flag or by address.
func IsProtected(t, gateway Target) bool {
	return t.IsGateway || strings.EqualFold(t.IP, gateway.IP)
}
