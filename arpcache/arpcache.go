// Package arpcache resolves IPv4-to-MAC mappings via ARP, queuing packets
// that arrive before resolution completes and retrying a bounded number of
// times before giving up on them.
package arpcache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-netroute/vrouter/arp"
	"github.com/go-netroute/vrouter/ethernet"
	"github.com/go-netroute/vrouter/ifaceset"
	"github.com/go-netroute/vrouter/internal"
	"github.com/go-netroute/vrouter/metrics"
)

const (
	entryTTL     = 15 * time.Second
	retryPeriod  = 1 * time.Second
	maxTimesSent = 5
)

var broadcastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// QueuedPacket is one frame held while its destination's MAC is resolved.
type QueuedPacket struct {
	// Data is an owned copy of the full link-layer frame as it was handed
	// to QueueRequest.
	Data []byte
}

type entry struct {
	mac       [6]byte
	insertedAt time.Time
}

type request struct {
	timesSent   int
	lastSentAt  time.Time
	ifaceName   string
	packets     []QueuedPacket
}

// SendFunc transmits a fully-formed link-layer frame out the named interface.
type SendFunc func(ifaceName string, frame []byte) error

type logger struct {
	log *slog.Logger
}

func (l logger) error(msg string, attrs ...slog.Attr) { internal.LogAttrs(l.log, slog.LevelError, msg, attrs...) }
func (l logger) info(msg string, attrs ...slog.Attr)  { internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...) }
func (l logger) warn(msg string, attrs ...slog.Attr)  { internal.LogAttrs(l.log, slog.LevelWarn, msg, attrs...) }

// UnresolvedFunc is invoked once per queued packet when ARP resolution for
// its target has exhausted its retry budget. The packet's own source
// interface must be inferred by the caller from pkt.Data; arpcache does not
// interpret the queued bytes.
type UnresolvedFunc func(pkt QueuedPacket, requestedInterface string)

// Cache resolves IPv4 addresses to link-layer addresses, queuing in-flight
// packets against outstanding ARP requests. The zero value is not usable;
// construct with [New].
type Cache struct {
	mu       sync.Mutex
	entries  map[[4]byte]entry
	requests map[[4]byte]*request

	ifaces     *ifaceset.Set
	send       SendFunc
	unresolved UnresolvedFunc
	now        func() time.Time
	log        logger
}

// New returns an empty Cache. send is used to transmit ARP request/reply
// frames and to flush queued packets after resolution. unresolved is called
// for every packet abandoned after exhausting ARP retries. log receives
// Info/Warn entries for ARP lifecycle events; a nil log discards them.
func New(ifaces *ifaceset.Set, send SendFunc, unresolved UnresolvedFunc, log *slog.Logger) *Cache {
	return &Cache{
		entries:    make(map[[4]byte]entry),
		requests:   make(map[[4]byte]*request),
		ifaces:     ifaces,
		send:       send,
		unresolved: unresolved,
		now:        time.Now,
		log:        logger{log: log},
	}
}

// Lookup returns the MAC address cached for ipv4, if any entry exists and
// has not exceeded its time-to-live.
func (c *Cache) Lookup(ipv4 [4]byte) ([6]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ipv4]
	if !ok || c.now().Sub(e.insertedAt) >= entryTTL {
		return [6]byte{}, false
	}
	return e.mac, true
}

// FlushResult describes packets released by a resolved ARP request, ready
// for the caller to hand to SendFrame on the request's interface.
type FlushResult struct {
	Interface string
	MAC       [6]byte
	Packets   []QueuedPacket
}

// Insert records mac as the resolved address for ipv4 on the interface
// identified by receivingInterface, but only if ipv4 equals that
// interface's own address — mirroring the restriction that the router
// learns addresses only from replies actually directed at itself, never
// gratuitously or across interfaces. It returns the packets, if any, that
// were queued awaiting this resolution so the caller can flush them.
func (c *Cache) Insert(mac [6]byte, ipv4 [4]byte, receivingInterface string) (FlushResult, bool) {
	ifc, ok := c.ifaces.ByName(receivingInterface)
	if !ok || ifc.IPv4 != ipv4 {
		return FlushResult{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ipv4] = entry{mac: mac, insertedAt: c.now()}
	metrics.ARPCacheSize.Set(float64(len(c.entries)))
	c.log.info("arp entry resolved", internal.SlogAddr4("ip", &ipv4), internal.SlogAddr6("mac", &mac), slog.String("iface", receivingInterface))

	req, ok := c.requests[ipv4]
	if !ok {
		return FlushResult{}, false
	}
	delete(c.requests, ipv4)
	return FlushResult{Interface: req.ifaceName, MAC: mac, Packets: req.packets}, true
}

// QueueRequest queues frame for delivery once ipv4 resolves, sending an
// initial ARP request broadcast out requestedInterface if one is not
// already outstanding for ipv4. frame is deep-copied; the caller retains
// ownership of its argument.
func (c *Cache) QueueRequest(ipv4 [4]byte, frame []byte, requestedInterface string) error {
	owned := make([]byte, len(frame))
	copy(owned, frame)

	c.mu.Lock()
	req, exists := c.requests[ipv4]
	if !exists {
		req = &request{ifaceName: requestedInterface}
		c.requests[ipv4] = req
	}
	req.packets = append(req.packets, QueuedPacket{Data: owned})
	firstUse := !exists
	c.mu.Unlock()

	if !firstUse {
		return nil
	}
	if err := c.broadcastRequest(ipv4, requestedInterface); err != nil {
		return err
	}
	c.mu.Lock()
	req.timesSent = 1
	req.lastSentAt = c.now()
	c.mu.Unlock()
	return nil
}

func (c *Cache) broadcastRequest(ipv4 [4]byte, ifaceName string) error {
	ifc, ok := c.ifaces.ByName(ifaceName)
	if !ok {
		return nil
	}
	buf := make([]byte, 14+28)
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return err
	}
	*efrm.DestinationHardwareAddr() = broadcastMAC
	*efrm.SourceHardwareAddr() = ifc.MAC
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, err := arp.NewFrame(buf[14:])
	if err != nil {
		return err
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpRequest)
	senderMAC, senderIP := afrm.Sender4()
	*senderMAC = ifc.MAC
	*senderIP = ifc.IPv4
	targetMAC, targetIP := afrm.Target4()
	*targetMAC = [6]byte{}
	*targetIP = ipv4

	err = c.send(ifaceName, buf)
	if err == nil {
		metrics.ARPRequestsSent.Inc()
	}
	return err
}

// Sweep runs one pass of the periodic ARP maintenance cycle: it expires
// stale cache entries, retries outstanding requests whose retry interval
// has elapsed, and abandons requests that have exhausted their retry
// budget, invoking unresolved for every packet queued against them.
func (c *Cache) Sweep() {
	now := c.now()

	c.mu.Lock()
	for ip, e := range c.entries {
		if now.Sub(e.insertedAt) >= entryTTL {
			delete(c.entries, ip)
		}
	}
	metrics.ARPCacheSize.Set(float64(len(c.entries)))

	type retryJob struct {
		ipv4      [4]byte
		ifaceName string
	}
	type giveUp struct {
		ipv4      [4]byte
		ifaceName string
		packets   []QueuedPacket
	}
	var toRetry []retryJob
	var toAbandon []giveUp

	for ip, req := range c.requests {
		if now.Sub(req.lastSentAt) < retryPeriod {
			continue
		}
		if req.timesSent >= maxTimesSent {
			toAbandon = append(toAbandon, giveUp{ipv4: ip, ifaceName: req.ifaceName, packets: req.packets})
			delete(c.requests, ip)
			continue
		}
		toRetry = append(toRetry, retryJob{ipv4: ip, ifaceName: req.ifaceName})
	}
	c.mu.Unlock()

	for _, job := range toRetry {
		c.broadcastRequest(job.ipv4, job.ifaceName)
		c.mu.Lock()
		if req, ok := c.requests[job.ipv4]; ok {
			req.timesSent++
			req.lastSentAt = c.now()
		}
		c.mu.Unlock()
	}

	for _, g := range toAbandon {
		metrics.ARPRequestsExpired.Inc()
		c.log.warn("arp resolution abandoned after exhausting retries",
			internal.SlogAddr4("target_ip", &g.ipv4), slog.String("iface", g.ifaceName), slog.Int("queued_packets", len(g.packets)))
		for _, pkt := range g.packets {
			if c.unresolved != nil {
				c.unresolved(pkt, g.ifaceName)
			}
		}
	}
}

// Run drives Sweep once per second until ctx-like stop channel closes. The
// caller owns the goroutine; Run blocks until stop is closed.
func (c *Cache) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(retryPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// HandleFrame processes a received ARP frame on the interface named
// receivingInterface. On a request targeting that interface's own address
// it sends a reply; on a reply targeting that interface's own address it
// inserts the sender into the cache and returns any packets released for
// flushing.
func (c *Cache) HandleFrame(receivingInterface string, afrm arp.Frame) (FlushResult, error) {
	hwType, hwLen := afrm.Hardware()
	protoType, protoLen := afrm.Protocol()
	if hwType != 1 || hwLen != 6 || protoType != ethernet.TypeIPv4 || protoLen != 4 {
		return FlushResult{}, errUnsupportedARP
	}

	ifc, ok := c.ifaces.ByName(receivingInterface)
	if !ok {
		return FlushResult{}, errUnknownInterface
	}

	senderMAC, senderIP := afrm.Sender4()
	_, targetIP := afrm.Target4()

	switch afrm.Operation() {
	case arp.OpRequest:
		if *targetIP != ifc.IPv4 {
			return FlushResult{}, nil
		}
		return FlushResult{}, c.sendReply(receivingInterface, ifc, *senderMAC, *senderIP)
	case arp.OpReply:
		if *targetIP != ifc.IPv4 {
			return FlushResult{}, nil
		}
		result, _ := c.Insert(*senderMAC, *senderIP, receivingInterface)
		return result, nil
	default:
		return FlushResult{}, nil
	}
}

func (c *Cache) sendReply(ifaceName string, ifc ifaceset.Interface, requesterMAC [6]byte, requesterIP [4]byte) error {
	buf := make([]byte, 14+28)
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return err
	}
	*efrm.DestinationHardwareAddr() = requesterMAC
	*efrm.SourceHardwareAddr() = ifc.MAC
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, err := arp.NewFrame(buf[14:])
	if err != nil {
		return err
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpReply)
	senderMAC, senderIP := afrm.Sender4()
	*senderMAC = ifc.MAC
	*senderIP = ifc.IPv4
	targetMAC, targetIP := afrm.Target4()
	*targetMAC = requesterMAC
	*targetIP = requesterIP

	return c.send(ifaceName, buf)
}
