// Package config loads the router's static startup configuration — its
// interface list, routing table entries, and NAT parameters — from YAML,
// independent of the forwarding engine itself.
package config

import (
	"fmt"
	"math/bits"
	"net"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Interface describes one router-attached link. Mask is optional: when set,
// the TAP transport assigns it to the underlying device at startup; when
// empty, the interface is expected to already be configured externally.
type Interface struct {
	Name string `yaml:"name"`
	MAC  string `yaml:"mac"`
	IPv4 string `yaml:"ipv4"`
	Mask string `yaml:"mask"`
}

// Route describes one static routing table entry.
type Route struct {
	Dest      string `yaml:"dest"`
	Mask      string `yaml:"mask"`
	Gateway   string `yaml:"gateway"`
	Interface string `yaml:"interface"`
}

// NAT describes the optional NAT overlay's parameters.
type NAT struct {
	Enabled             bool   `yaml:"enabled"`
	ExternalInterface   string `yaml:"external_interface"`
	AuxWindowMin        uint16 `yaml:"aux_window_min"`
	AuxWindowMax        uint16 `yaml:"aux_window_max"`
	ICMPTimeout         string `yaml:"icmp_timeout"`
	TCPTransitoryTimeout string `yaml:"tcp_transitory_timeout"`
}

// File is the top-level shape of a router configuration file.
type File struct {
	Interfaces []Interface `yaml:"interfaces"`
	Routes     []Route     `yaml:"routes"`
	NAT        NAT         `yaml:"nat"`
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("config: parsing: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks that the configuration is internally consistent: names
// are unique, addresses parse, and any NAT external interface is declared.
func (f File) Validate() error {
	seen := make(map[string]bool, len(f.Interfaces))
	for _, ifc := range f.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("config: interface entry missing name")
		}
		if seen[ifc.Name] {
			return fmt.Errorf("config: duplicate interface name %q", ifc.Name)
		}
		seen[ifc.Name] = true
		if _, err := ParseMAC(ifc.MAC); err != nil {
			return fmt.Errorf("config: interface %q: %w", ifc.Name, err)
		}
		if _, err := ParseIPv4(ifc.IPv4); err != nil {
			return fmt.Errorf("config: interface %q: %w", ifc.Name, err)
		}
		if ifc.Mask != "" {
			if _, err := ParseIPv4(ifc.Mask); err != nil {
				return fmt.Errorf("config: interface %q mask: %w", ifc.Name, err)
			}
		}
	}
	for _, r := range f.Routes {
		if !seen[r.Interface] {
			return fmt.Errorf("config: route references unknown interface %q", r.Interface)
		}
		if _, err := ParseIPv4(r.Dest); err != nil {
			return fmt.Errorf("config: route dest: %w", err)
		}
		if _, err := ParseIPv4(r.Mask); err != nil {
			return fmt.Errorf("config: route mask: %w", err)
		}
	}
	if f.NAT.Enabled {
		if !seen[f.NAT.ExternalInterface] {
			return fmt.Errorf("config: nat.external_interface %q is not a configured interface", f.NAT.ExternalInterface)
		}
		if f.NAT.AuxWindowMin != 0 || f.NAT.AuxWindowMax != 0 {
			if f.NAT.AuxWindowMax <= f.NAT.AuxWindowMin {
				return fmt.Errorf("config: nat.aux_window_max must exceed aux_window_min")
			}
		}
	}
	return nil
}

// Prefix returns ifc's address as a netip.Prefix, using Mask to compute the
// bit length. It reports false if Mask is unset.
func (ifc Interface) Prefix() (netip.Prefix, bool, error) {
	if ifc.Mask == "" {
		return netip.Prefix{}, false, nil
	}
	addr, err := ParseIPv4(ifc.IPv4)
	if err != nil {
		return netip.Prefix{}, false, err
	}
	mask, err := ParseIPv4(ifc.Mask)
	if err != nil {
		return netip.Prefix{}, false, err
	}
	maskBits := bits.OnesCount32(uint32(mask[0])<<24 | uint32(mask[1])<<16 | uint32(mask[2])<<8 | uint32(mask[3]))
	return netip.PrefixFrom(netip.AddrFrom4(addr), maskBits), true, nil
}

// ParseMAC parses a colon-separated hardware address into a fixed array.
func ParseMAC(s string) ([6]byte, error) {
	var out [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil {
		return out, fmt.Errorf("invalid MAC %q: %w", s, err)
	}
	if len(hw) != 6 {
		return out, fmt.Errorf("invalid MAC %q: want 6 bytes, got %d", s, len(hw))
	}
	copy(out[:], hw)
	return out, nil
}

// ParseIPv4 parses a dotted-decimal address or mask into a fixed array.
func ParseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	ip := net.ParseIP(s)
	if ip == nil {
		return out, fmt.Errorf("invalid IPv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return out, fmt.Errorf("not an IPv4 address: %q", s)
	}
	copy(out[:], ip4)
	return out, nil
}

// ParseDuration parses s as a time.Duration, returning fallback if s is empty.
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	return d, nil
}
