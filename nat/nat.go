// Package nat implements an endpoint-independent stateful NAT overlay:
// internal (ip, aux) pairs are multiplexed onto a shared external address
// using a per-protocol auxiliary port/identifier, in the style of RFC 4787.
package nat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-netroute/vrouter/internal"
	"github.com/go-netroute/vrouter/metrics"
)

// Type distinguishes the protocols this overlay multiplexes. Each has its
// own aux_ext allocation space and timeout.
type Type uint8

const (
	TypeICMP Type = iota
	TypeTCP
)

func (t Type) String() string {
	switch t {
	case TypeICMP:
		return "ICMP"
	case TypeTCP:
		return "TCP"
	default:
		return "unknown"
	}
}

const (
	auxExtMin = 50000
	auxExtMax = 59999 // inclusive

	// DefaultICMPTimeout is how long an idle ICMP mapping is kept.
	DefaultICMPTimeout = 60 * time.Second
	// DefaultTCPTransitoryTimeout is the RFC 5382 floor for TCP mappings
	// that have not reached an established substate. Since connection
	// substate tracking is not implemented, every TCP mapping uses this
	// timeout.
	DefaultTCPTransitoryTimeout = 6 * time.Minute
	// DefaultTCPEstablishedTimeout is recorded for configuration
	// compatibility but is currently unused: no mapping is ever promoted
	// out of the transitory substate.
	DefaultTCPEstablishedTimeout = 2*time.Hour + 4*time.Minute
)

var errNATExhausted = errors.New("nat: no free external aux available for protocol")

type logger struct {
	log *slog.Logger
}

func (l logger) error(msg string, attrs ...slog.Attr) { internal.LogAttrs(l.log, slog.LevelError, msg, attrs...) }
func (l logger) info(msg string, attrs ...slog.Attr)  { internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...) }
func (l logger) warn(msg string, attrs ...slog.Attr)  { internal.LogAttrs(l.log, slog.LevelWarn, msg, attrs...) }

// Connection is a placeholder for per-flow TCP state. The substate machine
// needed to distinguish transitory from established connections is not
// implemented; every TCP mapping is treated as transitory (see
// DefaultTCPTransitoryTimeout).
type Connection struct {
	SourcePort      uint16
	DestinationPort uint16
}

// Mapping is one internal-to-external address/aux translation.
type Mapping struct {
	Type Type

	IntIP  [4]byte
	ExtIP  [4]byte
	IntAux uint16
	ExtAux uint16

	LastUpdated time.Time
	Connections []Connection // reserved for TypeTCP; this package leaves it empty.
}

type internalKey struct {
	typ    Type
	ip     [4]byte
	auxInt uint16
}

type externalKey struct {
	typ    Type
	auxExt uint16
}

// Table is the NAT mapping table. All operations hold a single lock;
// InsertMapping checks the maps directly under that lock instead of calling
// the locking lookup methods, avoiding any need for a reentrant mutex.
type Table struct {
	mu sync.Mutex

	byInternal map[internalKey]*Mapping
	byExternal map[externalKey]*Mapping
	order      []*Mapping

	nextAux map[Type]uint16
	auxMin  uint16
	auxMax  uint16
	active  map[Type]int

	externalIP [4]byte
	now        func() time.Time
	log        logger

	icmpTimeout          time.Duration
	tcpTransitoryTimeout time.Duration
}

// New returns an empty Table using the default [50000, 59999] aux window.
// externalIP is the router's address assigned to every mapping's external
// endpoint. A nil log discards NAT lifecycle entries.
func New(externalIP [4]byte, log *slog.Logger) *Table {
	return NewWithAuxWindow(externalIP, auxExtMin, auxExtMax, log)
}

// NewWithAuxWindow is like New but allocates external aux values from
// [min, max] (inclusive) instead of the default window. It falls back to
// the default window if max <= min.
func NewWithAuxWindow(externalIP [4]byte, min, max uint16, log *slog.Logger) *Table {
	if max <= min {
		min, max = auxExtMin, auxExtMax
	}
	return &Table{
		byInternal:           make(map[internalKey]*Mapping),
		byExternal:           make(map[externalKey]*Mapping),
		nextAux:              map[Type]uint16{TypeICMP: min, TypeTCP: min},
		auxMin:               min,
		auxMax:               max,
		active:               make(map[Type]int),
		externalIP:           externalIP,
		now:                  time.Now,
		log:                  logger{log: log},
		icmpTimeout:          DefaultICMPTimeout,
		tcpTransitoryTimeout: DefaultTCPTransitoryTimeout,
	}
}

// LookupInternal returns the mapping for (ipInt, auxInt, typ), refreshing
// its last-updated time on a hit.
func (t *Table) LookupInternal(ipInt [4]byte, auxInt uint16, typ Type) (Mapping, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byInternal[internalKey{typ: typ, ip: ipInt, auxInt: auxInt}]
	if !ok {
		return Mapping{}, false
	}
	m.LastUpdated = t.now()
	return *m, true
}

// LookupExternal returns the mapping whose external aux is auxExt for typ,
// refreshing its last-updated time on a hit.
func (t *Table) LookupExternal(auxExt uint16, typ Type) (Mapping, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byExternal[externalKey{typ: typ, auxExt: auxExt}]
	if !ok {
		return Mapping{}, false
	}
	m.LastUpdated = t.now()
	return *m, true
}

// InsertMapping creates a new mapping for (ipInt, auxInt, typ), assigning
// the next free external aux in the table's aux window ([50000, 59999]
// unless set by NewWithAuxWindow) from a per-type round-robin counter,
// skipping any value already in use. It fails only when the
// entire window for typ is exhausted.
func (t *Table) InsertMapping(ipInt [4]byte, auxInt uint16, typ Type) (Mapping, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.nextAux[typ]
	candidate := start
	for {
		if _, taken := t.byExternal[externalKey{typ: typ, auxExt: candidate}]; !taken {
			break
		}
		candidate = t.nextInWindow(candidate)
		if candidate == start {
			metrics.NATMappingsExhausted.Inc()
			t.log.warn("nat aux window exhausted", slog.String("nat_type", typ.String()), internal.SlogAddr4("internal_ip", &ipInt))
			return Mapping{}, errNATExhausted
		}
	}
	t.nextAux[typ] = t.nextInWindow(candidate)

	m := &Mapping{
		Type:        typ,
		IntIP:       ipInt,
		ExtIP:       t.externalIP,
		IntAux:      auxInt,
		ExtAux:      candidate,
		LastUpdated: t.now(),
	}
	t.byInternal[internalKey{typ: typ, ip: ipInt, auxInt: auxInt}] = m
	t.byExternal[externalKey{typ: typ, auxExt: candidate}] = m
	t.order = append([]*Mapping{m}, t.order...)
	t.active[typ]++
	metrics.NATMappingsActive.WithLabelValues(typ.String()).Set(float64(t.active[typ]))
	t.log.info("nat mapping created", slog.String("nat_type", typ.String()), internal.SlogAddr4("internal_ip", &ipInt), slog.Uint64("external_aux", uint64(candidate)))
	return *m, nil
}

// SetTimeouts overrides the idle timeouts applied during Sweep. Zero values
// leave the corresponding timeout unchanged.
func (t *Table) SetTimeouts(icmp, tcpTransitory time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if icmp > 0 {
		t.icmpTimeout = icmp
	}
	if tcpTransitory > 0 {
		t.tcpTransitoryTimeout = tcpTransitory
	}
}

func (t *Table) nextInWindow(v uint16) uint16 {
	if v >= t.auxMax {
		return t.auxMin
	}
	return v + 1
}

// Sweep removes mappings idle longer than their protocol's timeout.
func (t *Table) Sweep() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.order[:0]
	for _, m := range t.order {
		timeout := t.tcpTransitoryTimeout
		if m.Type == TypeICMP {
			timeout = t.icmpTimeout
		}
		if now.Sub(m.LastUpdated) >= timeout {
			delete(t.byInternal, internalKey{typ: m.Type, ip: m.IntIP, auxInt: m.IntAux})
			delete(t.byExternal, externalKey{typ: m.Type, auxExt: m.ExtAux})
			t.active[m.Type]--
			metrics.NATMappingsActive.WithLabelValues(m.Type.String()).Set(float64(t.active[m.Type]))
			metrics.NATMappingsExpired.WithLabelValues(m.Type.String()).Inc()
			t.log.info("nat mapping expired", slog.String("nat_type", m.Type.String()), internal.SlogAddr4("internal_ip", &m.IntIP))
			continue
		}
		kept = append(kept, m)
	}
	t.order = kept
}

// Run drives Sweep once per second until stop is closed.
func (t *Table) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}
