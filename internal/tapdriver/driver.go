// Package tapdriver implements a [forwarding.Driver] over Linux TUN/TAP
// devices, one per configured router interface, using golang.org/x/sys/unix
// for the ioctl- and socket-level plumbing.
package tapdriver

import (
	"fmt"
	"sync"
)

// Link is satisfied by both *Tap and *Bridge.
type Link interface {
	Name() string
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

// FrameHandler receives one link-layer frame read from the named interface.
type FrameHandler func(ifaceName string, frame []byte)

// Driver multiplexes a fixed set of links, identified by interface name,
// behind a single forwarding.Driver-shaped SendFrame method.
type Driver struct {
	links map[string]Link
	mtu   int
}

// NewDriver builds a Driver over already-opened links, keyed by their own
// Name(). The per-read buffer is sized for a fixed 1500-byte MTU.
func NewDriver(links ...Link) *Driver {
	mtu := 1500
	byName := make(map[string]Link, len(links))
	for _, l := range links {
		byName[l.Name()] = l
	}
	return &Driver{links: byName, mtu: mtu}
}

// SendFrame writes frame out the link named ifaceName.
func (d *Driver) SendFrame(ifaceName string, frame []byte) error {
	l, ok := d.links[ifaceName]
	if !ok {
		return fmt.Errorf("tapdriver: unknown interface %q", ifaceName)
	}
	_, err := l.Write(frame)
	return err
}

// Run starts one read loop per link, each delivering frames to handle, and
// blocks until stop is closed. It does not return until every read loop has
// observed the stop signal or its link has errored out.
func (d *Driver) Run(stop <-chan struct{}, handle FrameHandler) {
	var wg sync.WaitGroup
	for name, l := range d.links {
		wg.Add(1)
		go func(name string, l Link) {
			defer wg.Done()
			d.readLoop(stop, name, l, handle)
		}(name, l)
	}
	wg.Wait()
}

func (d *Driver) readLoop(stop <-chan struct{}, name string, l Link, handle FrameHandler) {
	buf := make([]byte, d.mtu+18) // room for a VLAN-tagged Ethernet header.
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := l.Read(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		handle(name, frame)
	}
}

// Close closes every underlying link.
func (d *Driver) Close() error {
	var first error
	for _, l := range d.links {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
