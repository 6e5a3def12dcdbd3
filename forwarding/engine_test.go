package forwarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-netroute/vrouter/arp"
	"github.com/go-netroute/vrouter/arpcache"
	"github.com/go-netroute/vrouter/ethernet"
	"github.com/go-netroute/vrouter/ifaceset"
	"github.com/go-netroute/vrouter/ipv4"
	"github.com/go-netroute/vrouter/ipv4/icmpv4"
	"github.com/go-netroute/vrouter/nat"
	"github.com/go-netroute/vrouter/routetable"
	"github.com/go-netroute/vrouter/wire"
)

type fakeDriver struct {
	sent []sentFrame
}

type sentFrame struct {
	iface string
	data  []byte
}

func (d *fakeDriver) SendFrame(ifaceName string, frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.sent = append(d.sent, sentFrame{iface: ifaceName, data: cp})
	return nil
}

var (
	eth0MAC = [6]byte{0, 0, 0, 0, 0, 1}
	eth1MAC = [6]byte{0, 0, 0, 0, 0, 2}
	eth0IP  = [4]byte{10, 0, 0, 1}
	eth1IP  = [4]byte{192, 168, 1, 1}
	peerIP  = [4]byte{10, 0, 0, 50}
	peerMAC = [6]byte{9, 9, 9, 9, 9, 9}
)

func mask(bits int) [4]byte {
	var m [4]byte
	for i := 0; i < bits; i++ {
		m[i/8] |= 0x80 >> uint(i%8)
	}
	return m
}

func newTestEngine(t *testing.T) (*Engine, *fakeDriver, *ifaceset.Set) {
	t.Helper()
	ifaces, err := ifaceset.New([]ifaceset.Interface{
		{Name: "eth0", MAC: eth0MAC, IPv4: eth0IP},
		{Name: "eth1", MAC: eth1MAC, IPv4: eth1IP},
	})
	require.NoError(t, err)

	routes := routetable.New()
	routes.Insert(routetable.Route{Dest: [4]byte{10, 0, 0, 0}, Mask: mask(24), Gateway: peerIP, Interface: "eth0"})
	routes.Insert(routetable.Route{Dest: [4]byte{192, 168, 1, 0}, Mask: mask(24), Gateway: [4]byte{192, 168, 1, 2}, Interface: "eth1"})

	driver := &fakeDriver{}
	arpc := arpcache.New(ifaces, driver.SendFrame, nil, nil)
	e := New(ifaces, routes, arpc, driver, nil)

	// Prime the ARP cache by simulating a reply from the peer host so
	// SendIPFrame can deliver immediately in tests.
	resolveARP(t, e, "eth0", peerMAC, peerIP)

	return e, driver, ifaces
}

func resolveARP(t *testing.T, e *Engine, ifaceName string, mac [6]byte, ip [4]byte) {
	t.Helper()
	ifc, _ := e.ifaces.ByName(ifaceName)
	buf := make([]byte, 28)
	afrm, err := arp.NewFrame(buf)
	require.NoError(t, err)
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpReply)
	senderMAC, senderIP := afrm.Sender4()
	*senderMAC = mac
	*senderIP = ip
	_, targetIP := afrm.Target4()
	*targetIP = ifc.IPv4

	efrm := ethernetFrame(t, ifc.MAC, mac, ethernet.TypeARP, buf)
	e.HandleFrame(ifaceName, efrm.RawData())
}

func ethernetFrame(t *testing.T, dst, src [6]byte, et ethernet.Type, payload []byte) ethernet.Frame {
	t.Helper()
	buf := make([]byte, 14+len(payload))
	efrm, err := ethernet.NewFrame(buf)
	require.NoError(t, err)
	*efrm.DestinationHardwareAddr() = dst
	*efrm.SourceHardwareAddr() = src
	efrm.SetEtherType(et)
	copy(buf[14:], payload)
	return efrm
}

func buildEchoRequest(t *testing.T, srcMAC, dstMAC [6]byte, srcIP, dstIP [4]byte, ttl uint8, id uint16) []byte {
	t.Helper()
	icmpLen := 8 + 4 // header + 4 bytes of data
	totalLen := 20 + icmpLen
	buf := make([]byte, 14+totalLen)

	efrm, _ := ethernet.NewFrame(buf)
	*efrm.DestinationHardwareAddr() = dstMAC
	*efrm.SourceHardwareAddr() = srcMAC
	efrm.SetEtherType(ethernet.TypeIPv4)

	ifrm, err := ipv4.NewFrame(buf[14:])
	require.NoError(t, err)
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetTotalLength(uint16(totalLen))
	ifrm.SetID(id)
	ifrm.SetFlags(ipv4.Flags(0x4000))
	ifrm.SetTTL(ttl)
	ifrm.SetProtocol(wire.IPProtoICMP)
	ifrm.SetSourceAddr(srcIP)
	ifrm.SetDestinationAddr(dstIP)
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	icmp, err := icmpv4.NewFrame(ifrm.Payload())
	require.NoError(t, err)
	echo := icmpv4.FrameEcho{Frame: icmp}
	echo.SetType(icmpv4.TypeEcho)
	echo.SetCode(0)
	echo.SetIdentifier(0x1234)
	echo.SetSequenceNumber(1)
	copy(echo.Data(), []byte{1, 2, 3, 4})
	var crc wire.CRC791
	echo.CRCWrite(&crc)
	echo.SetCRC(crc.Sum16())

	return buf
}

func TestEngineEchoReply(t *testing.T) {
	e, driver, _ := newTestEngine(t)
	driver.sent = nil // discard ARP priming traffic.

	req := buildEchoRequest(t, peerMAC, eth0MAC, peerIP, eth0IP, 64, 7)
	e.HandleFrame("eth0", req)

	require.Len(t, driver.sent, 1, "want 1 echo reply")
	got := driver.sent[0]
	assert.Equal(t, "eth0", got.iface)

	efrm, _ := ethernet.NewFrame(got.data)
	assert.Equal(t, peerMAC, *efrm.DestinationHardwareAddr())

	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	assert.Equal(t, eth0IP, *ifrm.SourceAddr())
	assert.Equal(t, peerIP, *ifrm.DestinationAddr())
	assert.Equal(t, uint8(64), ifrm.TTL())

	icmp, _ := icmpv4.NewFrame(ifrm.Payload())
	assert.Equal(t, icmpv4.TypeEchoReply, icmp.Type())

	echo := icmpv4.FrameEcho{Frame: icmp}
	assert.Equal(t, uint16(0x1234), echo.Identifier(), "echo identifier not preserved")

	data := echo.Data()
	require.Len(t, data, 4)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, byte(4), data[3])
}

func TestEngineTTLExpiry(t *testing.T) {
	e, driver, _ := newTestEngine(t)
	driver.sent = nil

	// TTL=1 addressed across to the eth1 network, forwarded from eth0.
	req := buildEchoRequest(t, peerMAC, eth0MAC, peerIP, [4]byte{192, 168, 1, 50}, 1, 9)
	e.HandleFrame("eth0", req)

	require.Len(t, driver.sent, 1, "want 1 time-exceeded reply")
	efrm, _ := ethernet.NewFrame(driver.sent[0].data)
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	icmp, _ := icmpv4.NewFrame(ifrm.Payload())
	assert.Equal(t, icmpv4.TypeTimeExceeded, icmp.Type())
	assert.Equal(t, peerIP, *ifrm.DestinationAddr(), "time-exceeded reply should go back to original source")
}

func TestEngineHostUnreachableNoRoute(t *testing.T) {
	e, driver, _ := newTestEngine(t)
	driver.sent = nil

	req := buildEchoRequest(t, peerMAC, eth0MAC, peerIP, [4]byte{8, 8, 8, 8}, 64, 11)
	e.HandleFrame("eth0", req)

	require.Len(t, driver.sent, 1, "want 1 host-unreachable reply")
	efrm, _ := ethernet.NewFrame(driver.sent[0].data)
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	icmp, _ := icmpv4.NewFrame(ifrm.Payload())
	du := icmpv4.FrameDestinationUnreachable{Frame: icmp}
	assert.Equal(t, icmpv4.TypeDestinationUnreachable, icmp.Type())
	assert.Equal(t, icmpv4.CodeHostUnreachable, du.Code())
}

func TestEngineSelfAddressedErrorSuppressed(t *testing.T) {
	e, driver, _ := newTestEngine(t)
	driver.sent = nil

	// A packet whose source is one of our own addresses should never
	// trigger an ICMP error about itself.
	req := buildEchoRequest(t, peerMAC, eth0MAC, eth0IP, [4]byte{8, 8, 8, 8}, 64, 13)
	e.HandleFrame("eth0", req)

	assert.Empty(t, driver.sent, "expected no reply for a self-addressed error")
}

func TestEngineNATOutboundTranslatesSourceAndCreatesMapping(t *testing.T) {
	e, driver, _ := newTestEngine(t)
	driver.sent = nil

	natTable := nat.New(eth1IP, nil)
	e.EnableNAT(natTable, "eth1")
	resolveARP(t, e, "eth1", [6]byte{5, 5, 5, 5, 5, 5}, [4]byte{192, 168, 1, 2})
	driver.sent = nil

	internalHost := [4]byte{10, 0, 0, 77}
	internalMAC := [6]byte{3, 3, 3, 3, 3, 3}
	req := buildEchoRequest(t, internalMAC, eth0MAC, internalHost, [4]byte{192, 168, 1, 50}, 64, 21)
	e.HandleFrame("eth0", req)

	require.Len(t, driver.sent, 1, "want 1 translated outbound packet")
	efrm, _ := ethernet.NewFrame(driver.sent[0].data)
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	assert.Equal(t, eth1IP, *ifrm.SourceAddr(), "outbound source should be translated to external IP")

	_, ok := natTable.LookupInternal(internalHost, 0x1234, nat.TypeICMP)
	assert.True(t, ok, "expected a NAT mapping to have been created")
}
