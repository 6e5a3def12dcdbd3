package arpcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-netroute/vrouter/arp"
	"github.com/go-netroute/vrouter/ethernet"
	"github.com/go-netroute/vrouter/ifaceset"
)

func newTestSet(t *testing.T) *ifaceset.Set {
	t.Helper()
	set, err := ifaceset.New([]ifaceset.Interface{
		{Name: "eth0", MAC: [6]byte{1, 2, 3, 4, 5, 6}, IPv4: [4]byte{10, 0, 0, 1}},
	})
	require.NoError(t, err)
	return set
}

type sentFrame struct {
	iface string
	data  []byte
}

func newTestCache(t *testing.T) (*Cache, *[]sentFrame, *time.Time) {
	t.Helper()
	var sent []sentFrame
	send := func(ifaceName string, frame []byte) error {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		sent = append(sent, sentFrame{iface: ifaceName, data: cp})
		return nil
	}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(newTestSet(t), send, nil, nil)
	c.now = func() time.Time { return clock }
	return c, &sent, &clock
}

func TestLookupRespectsTTL(t *testing.T) {
	c, _, clock := newTestCache(t)
	c.entries[[4]byte{10, 0, 0, 2}] = entry{mac: [6]byte{9, 9, 9, 9, 9, 9}, insertedAt: *clock}

	_, ok := c.Lookup([4]byte{10, 0, 0, 2})
	require.True(t, ok, "expected fresh entry to be found")

	*clock = clock.Add(15 * time.Second)
	_, ok = c.Lookup([4]byte{10, 0, 0, 2})
	assert.False(t, ok, "expected expired entry to be gone")
}

func TestInsertRejectsNonMatchingTarget(t *testing.T) {
	c, _, _ := newTestCache(t)
	_, ok := c.Insert([6]byte{1}, [4]byte{8, 8, 8, 8}, "eth0")
	assert.False(t, ok, "expected insert for non-owned address to report no flush")

	_, ok = c.Lookup([4]byte{8, 8, 8, 8})
	assert.False(t, ok, "non-owned target IP must not be learned")
}

func TestQueueRequestSendsInitialBroadcast(t *testing.T) {
	c, sent, _ := newTestCache(t)
	target := [4]byte{10, 0, 0, 9}
	require.NoError(t, c.QueueRequest(target, []byte("packet-one"), "eth0"))
	require.Len(t, *sent, 1)
	assert.Equal(t, "eth0", (*sent)[0].iface)

	req := c.requests[target]
	require.NotNil(t, req)
	assert.Equal(t, 1, req.timesSent)
	assert.Len(t, req.packets, 1)

	require.NoError(t, c.QueueRequest(target, []byte("packet-two"), "eth0"))
	assert.Len(t, *sent, 1, "second queue for same target must not re-broadcast")
	assert.Len(t, c.requests[target].packets, 2, "expected both packets queued")
}

func TestInsertFlushesQueuedRequest(t *testing.T) {
	c, _, _ := newTestCache(t)
	target := [4]byte{10, 0, 0, 9}
	c.QueueRequest(target, []byte("packet-one"), "eth0")

	result, ok := c.Insert([6]byte{7, 7, 7, 7, 7, 7}, target, "eth0")
	require.True(t, ok, "expected a flush result")
	require.Len(t, result.Packets, 1)
	assert.Equal(t, "eth0", result.Interface)

	_, exists := c.requests[target]
	assert.False(t, exists, "request should be removed after flush")

	mac, ok := c.Lookup(target)
	require.True(t, ok)
	assert.Equal(t, [6]byte{7, 7, 7, 7, 7, 7}, mac)
}

func TestSweepGivesUpAfterFiveTries(t *testing.T) {
	c, sent, clock := newTestCache(t)
	target := [4]byte{10, 0, 0, 9}
	var abandoned []QueuedPacket
	c.unresolved = func(pkt QueuedPacket, ifaceName string) { abandoned = append(abandoned, pkt) }

	c.QueueRequest(target, []byte("p"), "eth0")
	for i := 0; i < 4; i++ {
		*clock = clock.Add(1 * time.Second)
		c.Sweep()
	}
	require.Len(t, *sent, 5, "want 1 initial + 4 retries")
	_, ok := c.requests[target]
	require.True(t, ok, "request should still be pending before 5th retry interval elapses")

	*clock = clock.Add(1 * time.Second)
	c.Sweep()
	_, ok = c.requests[target]
	assert.False(t, ok, "request should be abandoned after exhausting retries")
	assert.Len(t, abandoned, 1)
}

func TestHandleFrameRequestSendsReply(t *testing.T) {
	c, sent, _ := newTestCache(t)
	buf := make([]byte, 28)
	afrm, err := arp.NewFrame(buf)
	require.NoError(t, err)
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpRequest)
	senderMAC, senderIP := afrm.Sender4()
	*senderMAC = [6]byte{2, 2, 2, 2, 2, 2}
	*senderIP = [4]byte{10, 0, 0, 50}
	_, targetIP := afrm.Target4()
	*targetIP = [4]byte{10, 0, 0, 1}

	_, err = c.HandleFrame("eth0", afrm)
	require.NoError(t, err)
	require.Len(t, *sent, 1, "expected a reply to be sent")

	reply, _ := arp.NewFrame((*sent)[0].data[14:])
	assert.Equal(t, arp.OpReply, reply.Operation())
}

func TestHandleFrameRejectsWrongHardwareType(t *testing.T) {
	c, _, _ := newTestCache(t)
	buf := make([]byte, 28)
	afrm, _ := arp.NewFrame(buf)
	afrm.SetHardware(6, 6) // not Ethernet (1)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	_, err := c.HandleFrame("eth0", afrm)
	assert.Error(t, err, "expected rejection of non-Ethernet hardware type")
}
