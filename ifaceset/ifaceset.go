// Package ifaceset holds the router's immutable, post-startup set of named
// interfaces and their addresses. It answers lookups by name (egress
// selection) and by IPv4 address (is this packet addressed to us).
package ifaceset

import (
	"errors"
	"fmt"
)

// Interface is an immutable record of one router-attached link.
type Interface struct {
	Name string
	MAC  [6]byte
	IPv4 [4]byte
}

var errDuplicateName = errors.New("ifaceset: duplicate interface name")

// Set is a read-mostly collection of interfaces, built once at startup and
// never mutated afterwards; lookups require no locking.
type Set struct {
	byName map[string]Interface
	byIP   map[[4]byte]Interface
	order  []string
}

// New builds a Set from ifaces. It returns an error if two interfaces share a name.
func New(ifaces []Interface) (*Set, error) {
	s := &Set{
		byName: make(map[string]Interface, len(ifaces)),
		byIP:   make(map[[4]byte]Interface, len(ifaces)),
		order:  make([]string, 0, len(ifaces)),
	}
	for _, ifc := range ifaces {
		if _, exists := s.byName[ifc.Name]; exists {
			return nil, fmt.Errorf("%w: %q", errDuplicateName, ifc.Name)
		}
		s.byName[ifc.Name] = ifc
		s.byIP[ifc.IPv4] = ifc
		s.order = append(s.order, ifc.Name)
	}
	return s, nil
}

// ByName returns the interface with the given name.
func (s *Set) ByName(name string) (Interface, bool) {
	ifc, ok := s.byName[name]
	return ifc, ok
}

// ByIPv4 returns the interface owning addr, if any.
func (s *Set) ByIPv4(addr [4]byte) (Interface, bool) {
	ifc, ok := s.byIP[addr]
	return ifc, ok
}

// OwnsIPv4 reports whether addr belongs to any configured interface.
func (s *Set) OwnsIPv4(addr [4]byte) bool {
	_, ok := s.byIP[addr]
	return ok
}

// All returns every interface in the order they were registered.
func (s *Set) All() []Interface {
	out := make([]Interface, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}
