//go:build !linux || tinygo

package tapdriver

import (
	"errors"
	"net/netip"
)

// Tap is a no-op placeholder on platforms without Linux TUN/TAP support.
type Tap struct{}

func NewTap(name string, addr netip.Prefix) (*Tap, error) {
	return nil, errors.ErrUnsupported
}

func (tap *Tap) Name() string { return "" }

func (tap *Tap) IPMask() (netip.Prefix, error) {
	return netip.Prefix{}, errors.ErrUnsupported
}
func (tap *Tap) Read(b []byte) (int, error) {
	return -1, errors.ErrUnsupported
}
func (tap *Tap) Write(b []byte) (int, error) {
	return -1, errors.ErrUnsupported
}
func (tap *Tap) Close() error {
	return errors.ErrUnsupported
}
func (tap *Tap) MTU() (int, error) {
	return -1, errors.ErrUnsupported
}
func (tap *Tap) HardwareAddress6() (hw [6]byte, err error) {
	return hw, errors.ErrUnsupported
}

// Bridge is a no-op placeholder on platforms without AF_PACKET support.
type Bridge struct{}

func NewBridge(name string) (*Bridge, error) {
	return nil, errors.ErrUnsupported
}
func (br *Bridge) Name() string { return "" }
func (br *Bridge) Write(frame []byte) (int, error) {
	return -1, errors.ErrUnsupported
}
func (br *Bridge) Read(frame []byte) (int, error) {
	return -1, errors.ErrUnsupported
}
func (br *Bridge) Close() error {
	return errors.ErrUnsupported
}
func (br *Bridge) MTU() (int, error) {
	return -1, errors.ErrUnsupported
}
func (br *Bridge) HardwareAddress6() (hw [6]byte, err error) {
	return hw, errors.ErrUnsupported
}

func (br *Bridge) SetHardwareAddress6(hw [6]byte) error {
	return errors.ErrUnsupported
}

func (br *Bridge) IPMask() (netip.Prefix, error) {
	return netip.Prefix{}, errors.ErrUnsupported
}

func (br *Bridge) Addr() (netip.Addr, error) {
	return netip.Addr{}, errors.ErrUnsupported
}
