// Package forwarding implements the router's IP/ICMP forwarding plane: a
// single serial ingress path that resolves link-layer addresses, performs
// longest-prefix-match routing, replies to or forwards IPv4 traffic, and
// optionally translates internal/external addresses through a NAT overlay.
package forwarding

import (
	"errors"
	"log/slog"

	"github.com/go-netroute/vrouter/arp"
	"github.com/go-netroute/vrouter/arpcache"
	"github.com/go-netroute/vrouter/ethernet"
	"github.com/go-netroute/vrouter/ifaceset"
	"github.com/go-netroute/vrouter/internal"
	"github.com/go-netroute/vrouter/ipv4"
	"github.com/go-netroute/vrouter/ipv4/icmpv4"
	"github.com/go-netroute/vrouter/metrics"
	"github.com/go-netroute/vrouter/nat"
	"github.com/go-netroute/vrouter/routetable"
	"github.com/go-netroute/vrouter/tcp"
	"github.com/go-netroute/vrouter/wire"
)

// icmpDataSize is the number of bytes of the triggering IPv4 datagram
// (header included) copied into a type-3/type-11 ICMP error message.
const icmpDataSize = 28

// Driver is the transport the engine sends finished link-layer frames to.
// Implementations must copy frame synchronously before returning, since the
// engine may reuse or discard the backing array immediately afterwards.
type Driver interface {
	SendFrame(ifaceName string, frame []byte) error
}

var (
	errUnknownInterface = errors.New("forwarding: unknown interface")
	errNoGatewayRoute   = errors.New("forwarding: no route configured for egress interface")
)

type logger struct {
	log *slog.Logger
}

func (l logger) error(msg string, attrs ...slog.Attr) { internal.LogAttrs(l.log, slog.LevelError, msg, attrs...) }
func (l logger) info(msg string, attrs ...slog.Attr)  { internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...) }
func (l logger) warn(msg string, attrs ...slog.Attr)  { internal.LogAttrs(l.log, slog.LevelWarn, msg, attrs...) }
func (l logger) debug(msg string, attrs ...slog.Attr) { internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...) }

// Engine is the router's forwarding plane. Construct with [New]; a zero
// Engine is not usable.
type Engine struct {
	ifaces *ifaceset.Set
	routes *routetable.Table
	arp    *arpcache.Cache
	driver Driver
	log    logger

	idCounter uint16 // per-engine IP identification counter for echo replies and synthesized ICMP errors.

	nat                  *nat.Table
	natExternalInterface string
}

// New returns an Engine ready to handle ingress frames. NAT is disabled
// until EnableNAT is called.
func New(ifaces *ifaceset.Set, routes *routetable.Table, arpCache *arpcache.Cache, driver Driver, log *slog.Logger) *Engine {
	return &Engine{
		ifaces: ifaces,
		routes: routes,
		arp:    arpCache,
		driver: driver,
		log:    logger{log: log},
	}
}

// EnableNAT turns on the NAT overlay: packets forwarded out
// externalInterface have their source address/aux translated through tbl,
// and packets arriving on externalInterface addressed to its own IP are
// translated back to an internal destination when a mapping exists.
func (e *Engine) EnableNAT(tbl *nat.Table, externalInterface string) {
	e.nat = tbl
	e.natExternalInterface = externalInterface
}

func (e *Engine) nextID() uint16 {
	id := e.idCounter
	e.idCounter++
	return id
}

// HandleFrame processes one ingress link-layer frame received on ifaceName.
// frame is borrowed for the duration of the call only.
func (e *Engine) HandleFrame(ifaceName string, frame []byte) {
	ifc, ok := e.ifaces.ByName(ifaceName)
	if !ok {
		return
	}
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return
	}
	dst := *efrm.DestinationHardwareAddr()
	if !efrm.IsBroadcast() && dst != ifc.MAC {
		return
	}

	switch efrm.EtherTypeOrSize() {
	case ethernet.TypeARP:
		e.handleARP(ifaceName, efrm)
	case ethernet.TypeIPv4:
		e.handleIPv4(ifaceName, frame, efrm)
	default:
		// unsupported protocol, silently dropped.
	}
}

func (e *Engine) handleARP(ifaceName string, efrm ethernet.Frame) {
	afrm, err := arp.NewFrame(efrm.Payload())
	if err != nil {
		return
	}
	var v wire.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		metrics.FramesDropped.WithLabelValues("malformed_arp").Inc()
		return
	}

	result, err := e.arp.HandleFrame(ifaceName, afrm)
	if err != nil {
		e.log.debug("arp frame rejected", slog.String("iface", ifaceName), slog.String("err", err.Error()))
		metrics.FramesDropped.WithLabelValues("malformed_arp").Inc()
		return
	}
	e.flushARPQueue(result)
}

func (e *Engine) flushARPQueue(result arpcache.FlushResult) {
	for _, pkt := range result.Packets {
		efrm, err := ethernet.NewFrame(pkt.Data)
		if err != nil {
			continue
		}
		*efrm.DestinationHardwareAddr() = result.MAC
		e.driver.SendFrame(result.Interface, pkt.Data)
	}
}

// SendIPFrame is the link-layer send helper: it resolves the next hop for
// egressInterface via the routing table's gateway record, fills the
// Ethernet header, and either transmits immediately (ARP cache hit) or
// queues the frame for delivery once ARP resolves. frame must already have
// its IPv4 contents written starting at byte 14.
func (e *Engine) SendIPFrame(frame []byte, egressInterface string) error {
	egress, ok := e.ifaces.ByName(egressInterface)
	if !ok {
		return errUnknownInterface
	}
	route, ok := e.routes.LookupByName(egressInterface)
	if !ok {
		return errNoGatewayRoute
	}
	nextHop := route.Gateway

	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return err
	}
	efrm.SetEtherType(ethernet.TypeIPv4)
	*efrm.SourceHardwareAddr() = egress.MAC

	if mac, ok := e.arp.Lookup(nextHop); ok {
		*efrm.DestinationHardwareAddr() = mac
		metrics.FramesForwarded.WithLabelValues(egressInterface).Inc()
		return e.driver.SendFrame(egressInterface, frame)
	}
	return e.arp.QueueRequest(nextHop, frame, egressInterface)
}

func (e *Engine) handleIPv4(ifaceName string, frame []byte, efrm ethernet.Frame) {
	ifrm, err := ipv4.NewFrame(efrm.Payload())
	if err != nil {
		return
	}
	var v wire.Validator
	ifrm.ValidateExceptCRC(&v)
	if v.HasError() {
		metrics.FramesDropped.WithLabelValues("malformed_ipv4").Inc()
		e.log.warn("dropping malformed ipv4 frame", slog.String("iface", ifaceName))
		return
	}
	if ifrm.CRC() != ifrm.CalculateHeaderCRC() {
		metrics.FramesDropped.WithLabelValues("bad_checksum").Inc()
		src := *ifrm.SourceAddr()
		e.log.warn("dropping ipv4 frame with bad header checksum", slog.String("iface", ifaceName), internal.SlogAddr4("src", &src))
		return
	}

	dst := *ifrm.DestinationAddr()
	if e.natInboundCandidate(ifaceName, dst) {
		if e.translateInbound(ifrm) {
			dst = *ifrm.DestinationAddr() // translation rewrote it to the internal host.
		} else {
			return
		}
	}

	if e.ifaces.OwnsIPv4(dst) {
		e.handleLocal(ifaceName, frame, ifrm)
		return
	}
	e.forward(ifaceName, frame, ifrm)
}

func (e *Engine) handleLocal(ifaceName string, frame []byte, ifrm ipv4.Frame) {
	if ifrm.Protocol() != wire.IPProtoICMP {
		e.replyICMPError(icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodePortUnreachable), ifrm.RawData())
		return
	}
	icmp, err := icmpv4.NewFrame(ifrm.Payload())
	if err != nil || (icmp.Type() != icmpv4.TypeEcho) {
		return
	}
	e.replyEcho(ifaceName, frame, ifrm, icmp)
}

func (e *Engine) replyEcho(ifaceName string, frame []byte, ifrm ipv4.Frame, icmp icmpv4.Frame) {
	src, dst := *ifrm.SourceAddr(), *ifrm.DestinationAddr()
	ifrm.SetSourceAddr(dst)
	ifrm.SetDestinationAddr(src)
	ifrm.SetTTL(64)
	ifrm.SetID(e.nextID())
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	icmp.SetType(icmpv4.TypeEchoReply)
	icmp.SetCode(0)
	var crc wire.CRC791
	icmp.CRCWrite(&crc)
	icmp.SetCRC(crc.Sum16())

	metrics.ICMPRepliesSent.WithLabelValues("echo_reply").Inc()
	e.SendIPFrame(frame, ifaceName)
}

func (e *Engine) forward(ifaceName string, frame []byte, ifrm ipv4.Frame) {
	dst := *ifrm.DestinationAddr()
	if ifrm.TTL() == 0 {
		e.log.info("ttl expired, returning time-exceeded", internal.SlogAddr4("dst", &dst), slog.String("iface", ifaceName))
		e.replyICMPError(icmpv4.TypeTimeExceeded, uint8(icmpv4.CodeExceededInTransit), ifrm.RawData())
		return
	}
	if ifrm.DecrementTTL() == 0 {
		// Patch the TTL back to 1 before embedding: the packet is being
		// dropped either way, and the reply should show the hop count it
		// had on arrival rather than the fully-expired 0 the decrement
		// just produced.
		ifrm.SetTTL(1)
		e.log.info("ttl expired in transit, returning time-exceeded", internal.SlogAddr4("dst", &dst), slog.String("iface", ifaceName))
		e.replyICMPError(icmpv4.TypeTimeExceeded, uint8(icmpv4.CodeExceededInTransit), ifrm.RawData())
		return
	}

	route, ok := e.routes.Lookup(dst)
	if !ok || route.Interface == ifaceName {
		metrics.FramesDropped.WithLabelValues("no_route").Inc()
		e.log.warn("no route to destination", internal.SlogAddr4("dst", &dst), slog.String("iface", ifaceName))
		e.replyICMPError(icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodeHostUnreachable), ifrm.RawData())
		return
	}

	if e.nat != nil && route.Interface == e.natExternalInterface {
		if !e.translateOutbound(ifrm) {
			metrics.FramesDropped.WithLabelValues("nat_exhausted").Inc()
			src := *ifrm.SourceAddr()
			e.log.warn("dropping packet, nat aux window exhausted", internal.SlogAddr4("src", &src), slog.String("egress_iface", route.Interface))
			e.replyICMPError(icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodeHostUnreachable), ifrm.RawData())
			return
		}
	}

	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	e.SendIPFrame(frame, route.Interface)
}

// replyICMPError synthesizes a type-3 or type-11 ICMP error in response to
// originalIPPacket (the IPv4 datagram, without its Ethernet header) and
// routes it back towards that packet's source.
func (e *Engine) replyICMPError(icmpType icmpv4.Type, icmpCode uint8, originalIPPacket []byte) {
	origFrm, err := ipv4.NewFrame(originalIPPacket)
	if err != nil {
		return
	}
	origSrc := *origFrm.SourceAddr()
	if e.ifaces.OwnsIPv4(origSrc) {
		e.log.info("suppressing icmp error about self-addressed traffic", internal.SlogAddr4("src", &origSrc))
		return // suppress errors about our own traffic.
	}

	route, ok := e.routes.Lookup(origSrc)
	if !ok {
		return
	}
	egress, ok := e.ifaces.ByName(route.Interface)
	if !ok {
		return
	}

	const icmpMsgLen = icmpv4.ErrorDataOffset + icmpDataSize
	const totalLen = 20 + icmpMsgLen
	buf := make([]byte, 14+totalLen)

	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return
	}
	efrm.SetEtherType(ethernet.TypeIPv4)

	reply, err := ipv4.NewFrame(buf[14:])
	if err != nil {
		return
	}
	reply.SetVersionAndIHL(4, 5)
	reply.SetToS(0)
	reply.SetTotalLength(totalLen)
	reply.SetID(e.nextID())
	reply.SetFlags(ipv4.Flags(0x4000)) // DF
	reply.SetTTL(64)
	reply.SetProtocol(wire.IPProtoICMP)
	reply.SetSourceAddr(egress.IPv4)
	reply.SetDestinationAddr(origSrc)
	reply.SetCRC(0)
	reply.SetCRC(reply.CalculateHeaderCRC())

	icmp, err := icmpv4.NewFrame(reply.Payload())
	if err != nil {
		return
	}
	icmp.SetType(icmpType)
	icmp.SetCode(icmpCode)
	copy(icmp.Data(), originalIPPacket)

	var crc wire.CRC791
	icmp.CRCWrite(&crc)
	icmp.SetCRC(crc.Sum16())

	metrics.ICMPRepliesSent.WithLabelValues(icmpErrorMetricLabel(icmpType)).Inc()
	e.SendIPFrame(buf, route.Interface)
}

func icmpErrorMetricLabel(t icmpv4.Type) string {
	switch t {
	case icmpv4.TypeTimeExceeded:
		return "time_exceeded"
	case icmpv4.TypeDestinationUnreachable:
		return "destination_unreachable"
	default:
		return "other"
	}
}

func (e *Engine) natInboundCandidate(ingressInterface string, dst [4]byte) bool {
	if e.nat == nil || ingressInterface != e.natExternalInterface {
		return false
	}
	externalIfc, ok := e.ifaces.ByName(e.natExternalInterface)
	return ok && externalIfc.IPv4 == dst
}

// translateOutbound rewrites ifrm's source address and protocol aux from an
// internal endpoint to its NAT-assigned external one, creating a mapping on
// first use. It returns false if no mapping could be allocated.
func (e *Engine) translateOutbound(ifrm ipv4.Frame) bool {
	intIP := *ifrm.SourceAddr()
	natType, aux, ok := e.extractAux(ifrm, false)
	if !ok {
		return true // protocol not subject to NAT; pass through untranslated.
	}

	mapping, found := e.nat.LookupInternal(intIP, aux, natType)
	if !found {
		var err error
		mapping, err = e.nat.InsertMapping(intIP, aux, natType)
		if err != nil {
			return false
		}
	}

	ifrm.SetSourceAddr(mapping.ExtIP)
	e.rewriteAux(ifrm, natType, mapping.ExtAux, false)
	return true
}

// translateInbound rewrites ifrm's destination address and protocol aux from
// the shared external endpoint back to the mapped internal host. It reports
// whether a mapping was found; callers must drop the packet otherwise.
func (e *Engine) translateInbound(ifrm ipv4.Frame) bool {
	natType, aux, ok := e.extractAux(ifrm, true)
	if !ok {
		return false
	}
	mapping, found := e.nat.LookupExternal(aux, natType)
	if !found {
		return false
	}
	ifrm.SetDestinationAddr(mapping.IntIP)
	e.rewriteAux(ifrm, natType, mapping.IntAux, true)
	return true
}

// extractAux returns the protocol-specific multiplexing key for a packet,
// if its protocol is one NAT handles: the ICMP echo identifier, or the TCP
// port on the side facing the translator (destination port for an inbound
// packet addressed to the shared external endpoint, source port for an
// outbound packet leaving an internal host).
func (e *Engine) extractAux(ifrm ipv4.Frame, inbound bool) (nat.Type, uint16, bool) {
	switch ifrm.Protocol() {
	case wire.IPProtoICMP:
		icmp, err := icmpv4.NewFrame(ifrm.Payload())
		if err != nil || (icmp.Type() != icmpv4.TypeEcho && icmp.Type() != icmpv4.TypeEchoReply) {
			return 0, 0, false
		}
		echo := icmpv4.FrameEcho{Frame: icmp}
		return nat.TypeICMP, echo.Identifier(), true
	case wire.IPProtoTCP:
		t, err := tcp.NewFrame(ifrm.Payload())
		if err != nil {
			return 0, 0, false
		}
		if inbound {
			return nat.TypeTCP, t.DestinationPort(), true
		}
		return nat.TypeTCP, t.SourcePort(), true
	default:
		return 0, 0, false
	}
}

// rewriteAux overwrites the protocol aux field and recomputes the
// transport-layer checksum. inbound selects whether the TCP destination
// port (inbound) or source port (outbound) is rewritten.
func (e *Engine) rewriteAux(ifrm ipv4.Frame, natType nat.Type, newAux uint16, inbound bool) {
	switch natType {
	case nat.TypeICMP:
		icmp, err := icmpv4.NewFrame(ifrm.Payload())
		if err != nil {
			return
		}
		echo := icmpv4.FrameEcho{Frame: icmp}
		echo.SetIdentifier(newAux)
		var crc wire.CRC791
		echo.CRCWrite(&crc)
		echo.SetCRC(crc.Sum16())
	case nat.TypeTCP:
		t, err := tcp.NewFrame(ifrm.Payload())
		if err != nil {
			return
		}
		if inbound {
			t.SetDestinationPort(newAux)
		} else {
			t.SetSourcePort(newAux)
		}
		var crc wire.CRC791
		ifrm.CRCWriteTCPPseudo(&crc)
		t.CRCWrite(&crc)
		t.SetCRC(crc.Sum16())
	}
}
