package arp

import "strconv"

// String returns the name of the ARP operation, or a numeric fallback.
// Hand-written in place of a `stringer`-generated file since this repository
// does not run `go generate`.
func (op Operation) String() string {
	switch op {
	case OpRequest:
		return "request"
	case OpReply:
		return "reply"
	default:
		return "Operation(" + strconv.Itoa(int(op)) + ")"
	}
}
