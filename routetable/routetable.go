// Package routetable implements longest-prefix-match route selection over a
// static, insertion-ordered set of IPv4 routes, backed by a balanced radix
// trie ([github.com/gaissmai/bart]) rather than a linear mask-length scan.
package routetable

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// Route is one static forwarding entry: packets matching (Dest & Mask) are
// sent out Interface towards Gateway.
type Route struct {
	Dest      [4]byte
	Mask      [4]byte
	Gateway   [4]byte
	Interface string

	seq uint64 // insertion order, for tie-break fidelity; unreachable through bart's exact-key dedup in practice.
}

// Table is a read-mostly longest-prefix-match routing table. It requires no
// locking once populated: routes are static after startup.
type Table struct {
	bart bart.Table[*Route]
	seq  uint64
	all  []*Route // insertion order, kept alongside the trie for by-name lookup and tie-break bookkeeping.
}

// New returns an empty routing table.
func New() *Table {
	return &Table{}
}

// Insert adds r to the table. If a route with the identical (Dest, Mask)
// already exists, the earlier insertion is kept (first insertion wins),
// matching the insertion-ordered tie-break semantics of a linear scan.
func (t *Table) Insert(r Route) {
	pfx := prefixOf(r.Dest, r.Mask)
	if _, exists := t.bart.Get(pfx); exists {
		return
	}
	r.seq = t.seq
	t.seq++
	rc := r
	t.bart.Insert(pfx, &rc)
	t.all = append(t.all, &rc)
}

// Lookup returns the longest-prefix match for dst, or false if the table has
// no covering route.
func (t *Table) Lookup(dst [4]byte) (Route, bool) {
	addr := netip.AddrFrom4(dst)
	r, ok := t.bart.Lookup(addr)
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// LookupByName returns the first route (in insertion order) whose egress
// interface matches name. Used to resolve an interface's own gateway for the
// link-layer send helper, mirroring the original router looking up the
// gateway keyed by outbound interface name.
func (t *Table) LookupByName(name string) (Route, bool) {
	for _, r := range t.all {
		if r.Interface == name {
			return *r, true
		}
	}
	return Route{}, false
}

func prefixOf(dest, mask [4]byte) netip.Prefix {
	bits := maskBits(mask)
	addr := netip.AddrFrom4(dest)
	pfx, err := addr.Prefix(bits)
	if err != nil {
		// Unreachable for well-formed dest/mask pairs where (dest & mask) == dest.
		return netip.PrefixFrom(addr, 32)
	}
	return pfx
}

// maskBits counts leading one-bits in mask, the mask length as defined in
// the data model (mask length counted as leading one-bits).
func maskBits(mask [4]byte) int {
	n := 0
	for _, b := range mask {
		for b&0x80 != 0 {
			n++
			b <<= 1
		}
	}
	return n
}
