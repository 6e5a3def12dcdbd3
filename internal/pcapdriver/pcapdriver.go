// Package pcapdriver implements a [forwarding.Driver] over live network
// interfaces using libpcap, for deployments that run the router as a
// userspace process attached to real NICs instead of TAP devices.
package pcapdriver

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"

	"github.com/go-netroute/vrouter/ethernet"
)

// minFCSSearchOffset is the shortest a frame can be before a trailing FCS
// could plausibly start: an Ethernet header with no payload.
const minFCSSearchOffset = 14

const (
	snapLen        = 65536
	readTimeout    = 100 * time.Millisecond
	captureBufSize = 2 << 20
)

// FrameHandler receives one link-layer frame captured on the named interface.
type FrameHandler func(ifaceName string, frame []byte)

// Driver multiplexes live pcap captures across a fixed set of interfaces,
// keyed by their own name, behind a single SendFrame method.
type Driver struct {
	handles map[string]*pcap.Handle
}

// Open starts a live, promiscuous capture on every name in ifaceNames and
// returns a Driver ready to Run against them. On error it closes any handle
// already opened.
func Open(ifaceNames []string) (*Driver, error) {
	handles := make(map[string]*pcap.Handle, len(ifaceNames))
	for _, name := range ifaceNames {
		inactive, err := pcap.NewInactiveHandle(name)
		if err != nil {
			closeAll(handles)
			return nil, fmt.Errorf("pcapdriver: %s: %w", name, err)
		}
		if err := inactive.SetSnapLen(snapLen); err != nil {
			inactive.CleanUp()
			closeAll(handles)
			return nil, fmt.Errorf("pcapdriver: %s: %w", name, err)
		}
		if err := inactive.SetPromisc(true); err != nil {
			inactive.CleanUp()
			closeAll(handles)
			return nil, fmt.Errorf("pcapdriver: %s: %w", name, err)
		}
		if err := inactive.SetTimeout(readTimeout); err != nil {
			inactive.CleanUp()
			closeAll(handles)
			return nil, fmt.Errorf("pcapdriver: %s: %w", name, err)
		}
		if err := inactive.SetBufferSize(captureBufSize); err != nil {
			inactive.CleanUp()
			closeAll(handles)
			return nil, fmt.Errorf("pcapdriver: %s: %w", name, err)
		}
		handle, err := inactive.Activate()
		inactive.CleanUp()
		if err != nil {
			closeAll(handles)
			return nil, fmt.Errorf("pcapdriver: activating %s: %w", name, err)
		}
		handles[name] = handle
	}
	return &Driver{handles: handles}, nil
}

func closeAll(handles map[string]*pcap.Handle) {
	for _, h := range handles {
		h.Close()
	}
}

// SendFrame writes frame to the named interface's capture handle.
func (d *Driver) SendFrame(ifaceName string, frame []byte) error {
	h, ok := d.handles[ifaceName]
	if !ok {
		return fmt.Errorf("pcapdriver: unknown interface %q", ifaceName)
	}
	return h.WritePacketData(frame)
}

// Run starts one capture loop per interface, delivering frames to handle,
// and blocks until stop is closed.
func (d *Driver) Run(stop <-chan struct{}, handle FrameHandler) {
	var wg sync.WaitGroup
	for name, h := range d.handles {
		wg.Add(1)
		go func(name string, h *pcap.Handle) {
			defer wg.Done()
			d.captureLoop(stop, name, h, handle)
		}(name, h)
	}
	wg.Wait()
}

func (d *Driver) captureLoop(stop <-chan struct{}, name string, h *pcap.Handle, handle FrameHandler) {
	src := gopacket.NewPacketSource(h, h.LinkType())
	packets := src.Packets()
	for {
		select {
		case <-stop:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			data := pkt.Data()
			if len(data) == 0 {
				continue
			}
			// Some NICs/drivers hand promiscuous captures to userspace with
			// the trailing Ethernet FCS still attached. Locate and strip it
			// so the engine only ever sees the frame payload it wrote.
			if off := ethernet.CRC32Search(data, minFCSSearchOffset); off >= 0 {
				data = data[:off]
			}
			frame := make([]byte, len(data))
			copy(frame, data)
			handle(name, frame)
		}
	}
}

// Close closes every capture handle.
func (d *Driver) Close() error {
	closeAll(d.handles)
	return nil
}
