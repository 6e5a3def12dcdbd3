package arp

import (
	"bytes"
	"testing"

	"github.com/go-netroute/vrouter/ethernet"
	"github.com/go-netroute/vrouter/wire"
)

func TestFrameRequestReply(t *testing.T) {
	var buf [sizeHeaderv4]byte
	afrm, err := NewFrame(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpRequest)
	senderHW, senderIP := afrm.Sender4()
	*senderHW = [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	*senderIP = [4]byte{192, 168, 1, 1}
	_, targetIP := afrm.Target()
	_ = targetIP
	_, targetProto := afrm.Target4()
	*targetProto = [4]byte{192, 168, 1, 2}

	var vld wire.Validator
	afrm.ValidateSize(&vld)
	if vld.HasError() {
		t.Fatalf("unexpected validation error: %s", vld.Err())
	}
	if afrm.Operation() != OpRequest {
		t.Fatalf("got op %v want request", afrm.Operation())
	}

	afrm.SwapTargetSender()
	hw, ip := afrm.Sender4()
	if *hw != [6]byte{} {
		t.Fatal("expected sender hwaddr cleared after swap (was target's empty hwaddr)")
	}
	if !bytes.Equal(ip[:], []byte{192, 168, 1, 2}) {
		t.Fatalf("got sender ip %v want 192.168.1.2 after swap", ip)
	}
}

func TestFrameValidateShort(t *testing.T) {
	var buf [4]byte
	_, err := NewFrame(buf[:])
	if err == nil {
		t.Fatal("expected error constructing frame from undersized buffer")
	}
}

func TestFrameClip(t *testing.T) {
	var buf [64]byte
	afrm, err := NewFrame(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	clipped := afrm.Clip()
	if len(clipped.RawData()) != sizeHeaderv4 {
		t.Fatalf("got clipped length %d want %d", len(clipped.RawData()), sizeHeaderv4)
	}
}
