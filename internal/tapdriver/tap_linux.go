//go:build linux && !baremetal

package tapdriver

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"
	"os/exec"

	"golang.org/x/sys/unix"
)

const tunDevice = "/dev/net/tun"

// Tap is a Linux TUN/TAP device backing one router-attached link.
type Tap struct {
	fd   int
	name string
}

// NewTap creates (or attaches to) a TAP device named name. If addr is a
// valid prefix, the interface is brought up and assigned that address via
// the system `ip` command.
func NewTap(name string, addr netip.Prefix) (*Tap, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("tapdriver: interface name %q too long", name)
	}
	fd, err := unix.Open(tunDevice, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tapdriver: open %s: %w", tunDevice, err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	ifr.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tapdriver: TUNSETIFF %s: %w", name, err)
	}

	if addr.IsValid() {
		if err := exec.Command("ip", "link", "set", "dev", name, "up").Run(); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tapdriver: bring up %s: %w", name, err)
		}
		if err := exec.Command("ip", "addr", "add", addr.String(), "dev", name).Run(); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tapdriver: assign address to %s: %w", name, err)
		}
	}
	return &Tap{fd: fd, name: name}, nil
}

func (tap *Tap) Name() string { return tap.name }

func (tap *Tap) Read(b []byte) (int, error)  { return unix.Read(tap.fd, b) }
func (tap *Tap) Write(b []byte) (int, error) { return unix.Write(tap.fd, b) }
func (tap *Tap) Close() error                { return unix.Close(tap.fd) }

func (tap *Tap) MTU() (int, error) {
	sock, err := ctlSocket()
	if err != nil {
		return 0, err
	}
	defer unix.Close(sock)
	return socketMTU(sock, tap.name)
}

func (tap *Tap) HardwareAddress6() (hw [6]byte, err error) {
	// The TUN/TAP fd itself has no notion of a hardware address; that is
	// queried through the regular network stack via a control socket.
	sock, err := ctlSocket()
	if err != nil {
		return hw, err
	}
	defer unix.Close(sock)
	return socketHardwareAddr(sock, tap.name)
}

func (tap *Tap) IPMask() (netip.Prefix, error) {
	sock, err := ctlSocket()
	if err != nil {
		return netip.Prefix{}, err
	}
	defer unix.Close(sock)
	return socketMask(sock, tap.name)
}

func ctlSocket() (int, error) {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_IP)
	if err != nil {
		return 0, fmt.Errorf("tapdriver: control socket: %w", err)
	}
	return sock, nil
}

func socketMTU(sockfd int, name string) (int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, err
	}
	if err := unix.IoctlIfreq(sockfd, unix.SIOCGIFMTU, ifr); err != nil {
		return 0, err
	}
	return int(int32(ifr.Uint32())), nil
}

func socketHardwareAddr(sockfd int, name string) (hw [6]byte, err error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return hw, err
	}
	if err := unix.IoctlIfreq(sockfd, unix.SIOCGIFHWADDR, ifr); err != nil {
		return hw, err
	}
	data := ifr.Bytes()
	saFamily := binary.LittleEndian.Uint16(data[0:2])
	if saFamily != unix.ARPHRD_ETHER {
		return hw, fmt.Errorf("tapdriver: unexpected hardware family %d for %s", saFamily, name)
	}
	copy(hw[:], data[2:8])
	return hw, nil
}

func setSocketHW(sockfd int, name string, hw [6]byte) error {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	data := ifr.Bytes()
	binary.LittleEndian.PutUint16(data[0:2], unix.ARPHRD_ETHER)
	copy(data[2:8], hw[:])
	if err := unix.IoctlIfreq(sockfd, unix.SIOCSIFHWADDR, ifr); err != nil {
		return fmt.Errorf("tapdriver: setting hardware address on %s: %w", name, err)
	}
	return nil
}

func socketMask(sockfd int, name string) (netip.Prefix, error) {
	addr, err := socketIPv4(sockfd, name)
	if err != nil {
		return netip.Prefix{}, err
	}
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return netip.Prefix{}, err
	}
	if err := unix.IoctlIfreq(sockfd, unix.SIOCGIFNETMASK, ifr); err != nil {
		return netip.Prefix{}, err
	}
	data := ifr.Bytes()
	maskBits := bits.OnesCount32(binary.BigEndian.Uint32(data[4:8]))
	return netip.PrefixFrom(addr, maskBits), nil
}

func socketIPv4(sockfd int, name string) (netip.Addr, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return netip.Addr{}, err
	}
	if err := unix.IoctlIfreq(sockfd, unix.SIOCGIFADDR, ifr); err != nil {
		return netip.Addr{}, err
	}
	data := ifr.Bytes()
	saFamily := binary.LittleEndian.Uint16(data[0:2])
	if saFamily != unix.AF_INET {
		return netip.Addr{}, fmt.Errorf("tapdriver: unsupported address family %d for %s", saFamily, name)
	}
	addr, ok := netip.AddrFromSlice(data[4:8])
	if !ok {
		return netip.Addr{}, fmt.Errorf("tapdriver: malformed address for %s", name)
	}
	return addr.Unmap(), nil
}

// Bridge is a raw AF_PACKET socket bound to an existing host NIC, used to
// hand frames onto a physical or virtual network outside the TAP set.
type Bridge struct {
	fd   int
	name string
}

func NewBridge(name string) (*Bridge, error) {
	iface, err := interfaceByName(name)
	if err != nil {
		return nil, err
	}
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("tapdriver: raw socket: %w", err)
	}
	sa := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tapdriver: bind %s: %w", name, err)
	}
	return &Bridge{fd: fd, name: iface.Name}, nil
}

func (br *Bridge) Name() string { return br.name }

func (br *Bridge) Write(frame []byte) (int, error) { return unix.Write(br.fd, frame) }
func (br *Bridge) Read(frame []byte) (int, error)  { return unix.Read(br.fd, frame) }
func (br *Bridge) Close() error                    { return unix.Close(br.fd) }

func (br *Bridge) HardwareAddress6() (hw [6]byte, err error) {
	return socketHardwareAddr(br.fd, br.name)
}

func (br *Bridge) SetHardwareAddress6(hw [6]byte) error {
	return setSocketHW(br.fd, br.name, hw)
}

func (br *Bridge) IPMask() (netip.Prefix, error) {
	return socketMask(br.fd, br.name)
}

func (br *Bridge) Addr() (netip.Addr, error) {
	return socketIPv4(br.fd, br.name)
}

func (br *Bridge) MTU() (int, error) {
	return socketMTU(br.fd, br.name)
}

// htons converts a uint16 from host to network byte order.
func htons(i uint16) uint16 { return (i<<8)&0xff00 | i>>8 }
