// Package tcp provides read/write access to the fixed portion of a TCP
// segment header. It deliberately implements none of the connection state
// machine (sequence numbers, retransmission, options parsing) — only the
// fields a NAT translator needs to rewrite in place: ports and checksum.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-netroute/vrouter/wire"
)

const sizeHeader = 20

var errShortFrame = errors.New("tcp: short frame")

// NewFrame returns a Frame over buf. An error is returned if buf is shorter
// than the fixed 20 byte TCP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

// Frame is a thin accessor over a TCP segment's fixed header fields.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (tfrm Frame) RawData() []byte { return tfrm.buf }

// SourcePort identifies the sending port of the TCP segment. Must be non-zero.
func (tfrm Frame) SourcePort() uint16 {
	return binary.BigEndian.Uint16(tfrm.buf[0:2])
}

// SetSourcePort sets the TCP source port. See [Frame.SourcePort].
func (tfrm Frame) SetSourcePort(port uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[0:2], port)
}

// DestinationPort identifies the receiving port of the TCP segment. Must be non-zero.
func (tfrm Frame) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(tfrm.buf[2:4])
}

// SetDestinationPort sets the TCP destination port. See [Frame.DestinationPort].
func (tfrm Frame) SetDestinationPort(port uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[2:4], port)
}

// DataOffset returns the header length in 32-bit words, as carried in the
// high nibble of byte 12.
func (tfrm Frame) DataOffset() uint8 {
	return tfrm.buf[12] >> 4
}

// HeaderLength returns the TCP header length in bytes, including options.
func (tfrm Frame) HeaderLength() int {
	return int(tfrm.DataOffset()) * 4
}

// CRC returns the checksum field of the TCP header.
func (tfrm Frame) CRC() uint16 {
	return binary.BigEndian.Uint16(tfrm.buf[16:18])
}

// SetCRC sets the checksum field of the TCP header. See [Frame.CRC].
func (tfrm Frame) SetCRC(checksum uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[16:18], checksum)
}

// CRCWrite feeds the TCP segment (header plus payload, checksum field
// treated as zero) into the running checksum. Callers must first write the
// IPv4 pseudo-header into crc, e.g. via ipv4.Frame.CRCWriteTCPPseudo.
func (tfrm Frame) CRCWrite(crc *wire.CRC791) {
	crc.Write(tfrm.buf[0:16])
	crc.AddUint16(0) // checksum field, treated as zero per RFC 9293 §3.1.
	crc.Write(tfrm.buf[18:])
}

// Payload returns the TCP segment data following the header and options.
// Be sure to call [Frame.ValidateSize] beforehand to avoid panic.
func (tfrm Frame) Payload() []byte {
	return tfrm.buf[tfrm.HeaderLength():]
}

// ValidateSize checks the frame's data offset field against the buffer length.
func (tfrm Frame) ValidateSize(v *wire.Validator) {
	hl := tfrm.HeaderLength()
	if hl < sizeHeader {
		v.AddError(errors.New("tcp: data offset too small"))
	}
	if hl > len(tfrm.buf) {
		v.AddError(errors.New("tcp: data offset exceeds frame"))
	}
}

func (tfrm Frame) String() string {
	return fmt.Sprintf("TCP :%d -> :%d", tfrm.SourcePort(), tfrm.DestinationPort())
}
