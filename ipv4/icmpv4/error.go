package icmpv4

// ErrorDataOffset is the offset of the embedded-packet data area within a
// type-3 (destination unreachable) or type-11 (time exceeded) ICMP message:
// 1 byte type, 1 byte code, 2 bytes checksum, 4 bytes unused/zero.
const ErrorDataOffset = 8

// Data returns the embedded-packet data area of a type-3 or type-11 ICMP
// error message: the first bytes of the IPv4 datagram that triggered it.
func (frm Frame) Data() []byte {
	return frm.buf[ErrorDataOffset:]
}

// FrameTimeExceeded is a type-11 ICMP message.
type FrameTimeExceeded struct {
	Frame
}

func (frm FrameTimeExceeded) Code() CodeTimeExceeded {
	return CodeTimeExceeded(frm.Frame.Code())
}

func (frm FrameTimeExceeded) SetCode(code CodeTimeExceeded) {
	frm.Frame.SetCode(uint8(code))
}
