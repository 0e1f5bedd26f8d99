// Package rules defines the forwarding rule model and its kernel map
// encoding.
package rules

import (
	"fmt"
	"net/netip"
	"strings"
)

// Protocol numbers from IANA, as carried in the IP header.
const (
	protoICMP = 1
	protoTCP  = 6
	protoUDP  = 17
)

// Rule is one forwarding rule as written in the configuration file.
// Traffic arriving on BindAddr:BindPort with the given protocol is
// rewritten to DestAddr:DestPort by the kernel program.
type Rule struct {
	BindAddr string `yaml:"bind_addr"`
	BindPort uint16 `yaml:"bind_port"`
	Protocol string `yaml:"protocol"`
	DestAddr string `yaml:"dest_addr"`
	DestPort uint16 `yaml:"dest_port"`
}

// Validate checks addresses and protocol. Only IPv4 rules are accepted;
// the kernel program's rule table keys on 32-bit addresses.
func (r Rule) Validate() error {
	if _, err := parseIPv4(r.BindAddr); err != nil {
		return fmt.Errorf("bind_addr: %w", err)
	}
	if _, err := parseIPv4(r.DestAddr); err != nil {
		return fmt.Errorf("dest_addr: %w", err)
	}
	if _, err := protocolNumber(r.Protocol); err != nil {
		return err
	}
	return nil
}

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("address %q is not IPv4", s)
	}
	return addr, nil
}

func protocolNumber(s string) (uint8, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return protoTCP, nil
	case "udp":
		return protoUDP, nil
	case "icmp":
		return protoICMP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}
