package wire

import (
	"encoding/binary"
)

// CRC791 implements the checksum algorithm defined by RFC 791. The checksum
// field for TCP, UDP and IPv4 is the 16-bit ones' complement of the ones'
// complement sum of all 16-bit words making up the data. An uneven number of
// octets is handled by padding the last word with a zero low byte.
//
// The zero value of CRC791 is ready to use.
type CRC791 struct {
	sum uint32
	odd bool
	pad byte
}

func checksum16(sum uint32) uint16 {
	sum = (sum & 0xffff) + sum>>16
	// the max value of sum at this point is 0x1fffe, so an additional round is enough
	return ^uint16(sum + sum>>16)
}

func checksumWriteEven(sum uint32, buff []byte) uint32 {
	for i := 0; i < len(buff); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buff[i:]))
	}
	return sum
}

// WriteEven adds the bytes in buff to the running checksum. The buffer
// length must be even or the function panics.
func (c *CRC791) WriteEven(buff []byte) {
	if len(buff)%2 != 0 {
		panic("wire: WriteEven given odd-length buffer")
	}
	c.sum = checksumWriteEven(c.sum, buff)
}

// Write adds the bytes in buff to the running checksum, carrying a leftover
// odd byte across calls so callers may feed a checksum body piecewise (header,
// then payload) without pre-concatenating it into one buffer.
func (c *CRC791) Write(buff []byte) (int, error) {
	n := len(buff)
	if c.odd {
		var pair [2]byte
		pair[0] = c.pad
		if n > 0 {
			pair[1] = buff[0]
			buff = buff[1:]
			c.sum += uint32(binary.BigEndian.Uint16(pair[:]))
			c.odd = false
		} else {
			return n, nil
		}
	}
	odd := len(buff) & 1
	c.sum = checksumWriteEven(c.sum, buff[:len(buff)-odd])
	if odd > 0 {
		c.pad = buff[len(buff)-1]
		c.odd = true
	}
	return n, nil
}

// AddUint32 adds a 32 bit value to the running checksum interpreted as BigEndian (network order).
func (c *CRC791) AddUint32(value uint32) {
	c.AddUint16(uint16(value >> 16))
	c.AddUint16(uint16(value))
}

// AddUint16 adds a 16 bit value to the running checksum interpreted as BigEndian (network order).
func (c *CRC791) AddUint16(value uint16) {
	c.sum += uint32(value)
}

// Sum16 calculates the checksum with the data written to c thus far. If an
// odd trailing byte is pending it is folded in padded with a zero low byte,
// without mutating c's accumulated state.
func (c *CRC791) Sum16() uint16 {
	sum := c.sum
	if c.odd {
		sum += uint32(c.pad) << 8
	}
	return checksum16(sum)
}

// PayloadSum16 returns the checksum resulting by adding the bytes in buff to the running checksum,
// without mutating c's accumulated state.
func (c *CRC791) PayloadSum16(buff []byte) uint16 {
	odd := len(buff) & 1
	sum := checksumWriteEven(c.sum, buff[:len(buff)-odd])
	if odd > 0 {
		sum += uint32(buff[len(buff)-1]) << 8
	}
	return checksum16(sum)
}

// Reset zeros out the CRC791, resetting it to the initial state.
func (c *CRC791) Reset() { *c = CRC791{} }

// NeverZeroChecksum ensures that the given checksum is not zero, by returning 0xffff instead.
func NeverZeroChecksum(sum16 uint16) uint16 {
	// 0x0000 and 0xffff are the same number in ones' complement math
	if sum16 == 0 {
		return 0xffff
	}
	return sum16
}
