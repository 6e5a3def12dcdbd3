package wire

import "strconv"

// String returns the name of the ether type as given by its linecomment, or a
// hex fallback for unrecognized values. Hand-written in place of a
// `stringer`-generated file since this repository does not run `go generate`.
func (et EtherType) String() string {
	switch et {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	case EtherTypeWakeOnLAN:
		return "wake on LAN"
	case EtherTypeTRILL:
		return "TRILL"
	case EtherTypeDECnetPhase4:
		return "DECnetPhase4"
	case EtherTypeRARP:
		return "RARP"
	case EtherTypeAppleTalk:
		return "AppleTalk"
	case EtherTypeAARP:
		return "AARP"
	case EtherTypeIPX1:
		return "IPx1"
	case EtherTypeIPX2:
		return "IPx2"
	case EtherTypeQNXQnet:
		return "QNXQnet"
	case EtherTypeIPv6:
		return "IPv6"
	case EtherTypeEthernetFlowControl:
		return "EthernetFlowCtl"
	case EtherTypeIEEE802_3:
		return "IEEE802.3"
	case EtherTypeCobraNet:
		return "CobraNet"
	case EtherTypeMPLSUnicast:
		return "MPLS Unicast"
	case EtherTypeMPLSMulticast:
		return "MPLS Multicast"
	case EtherTypePPPoEDiscovery:
		return "PPPoE discovery"
	case EtherTypePPPoESession:
		return "PPPoE session"
	case EtherTypeJumboFrames:
		return "jumbo frames"
	case EtherTypeHomePlug1_0MME:
		return "home plug 1 0mme"
	case EtherTypeIEEE802_1X:
		return "IEEE 802.1x"
	case EtherTypePROFINET:
		return "profinet"
	case EtherTypeHyperSCSI:
		return "hyper SCSI"
	case EtherTypeAoE:
		return "AoE"
	case EtherTypeEtherCAT:
		return "EtherCAT"
	case EtherTypeEthernetPowerlink:
		return "Ethernet powerlink"
	case EtherTypeLLDP:
		return "LLDP"
	case EtherTypeSERCOS3:
		return "SERCOS3"
	case EtherTypeHomePlugAVMME:
		return "home plug AVMME"
	case EtherTypeMRP:
		return "MRP"
	case EtherTypeIEEE802_1AE:
		return "IEEE 802.1ae"
	case EtherTypeIEEE1588:
		return "IEEE 1588"
	case EtherTypeIEEE802_1ag:
		return "IEEE 802.1ag"
	case EtherTypeFCoE:
		return "FCoE"
	case EtherTypeFCoEInit:
		return "FCoE init"
	case EtherTypeRoCE:
		return "RoCE"
	case EtherTypeCTP:
		return "CTP"
	case EtherTypeVeritasLLT:
		return "Veritas LLT"
	case EtherTypeVLAN:
		return "VLAN"
	case EtherTypeServiceVLAN:
		return "service VLAN"
	default:
		if et.IsSize() {
			return "size(" + strconv.Itoa(int(et)) + ")"
		}
		return "EtherType(0x" + strconv.FormatUint(uint64(et), 16) + ")"
	}
}

// String returns the name of the IP protocol number, or a numeric fallback.
func (p IPProto) String() string {
	switch p {
	case IPProtoHopByHop:
		return "IPv6 Hop-by-Hop Option"
	case IPProtoICMP:
		return "ICMP"
	case IPProtoIGMP:
		return "IGMP"
	case IPProtoGGP:
		return "GGP"
	case IPProtoIPv4:
		return "IPv4 encapsulation"
	case IPProtoST:
		return "Stream"
	case IPProtoTCP:
		return "TCP"
	case IPProtoEGP:
		return "EGP"
	case IPProtoIGP:
		return "IGP"
	case IPProtoUDP:
		return "UDP"
	case IPProtoIPv6:
		return "IPv6 encapsulation"
	case IPProtoIPv6Route:
		return "IPv6 Route"
	case IPProtoIPv6Frag:
		return "IPv6 Frag"
	case IPProtoRSVP:
		return "RSVP"
	case IPProtoGRE:
		return "GRE"
	case IPProtoESP:
		return "ESP"
	case IPProtoAH:
		return "AH"
	case IPProtoIPv6ICMP:
		return "ICMPv6"
	case IPProtoIPv6NoNxt:
		return "IPv6 No Next Header"
	case IPProtoIPv6Opts:
		return "IPv6 Destination Options"
	case IPProtoEIGRP:
		return "EIGRP"
	case IPProtoOSPFIGP:
		return "OSPFIGP"
	case IPProtoVRRP:
		return "VRRP"
	case IPProtoL2TP:
		return "L2TP"
	case IPProtoSCTP:
		return "SCTP"
	case IPProtoUDPLite:
		return "UDPLite"
	case IPProtoMPLSInIP:
		return "MPLS-in-IP"
	default:
		return "IPProto(" + strconv.Itoa(int(p)) + ")"
	}
}

// String returns the name of the generic error, or a numeric fallback.
func (err errGeneric) String() string {
	switch err {
	case ErrBug:
		return "internal bug, should not occur"
	case ErrPacketDrop:
		return "packet dropped"
	case ErrBadCRC:
		return "incorrect checksum"
	case ErrZeroSource:
		return "zero source(port/addr)"
	case ErrZeroDestination:
		return "zero destination(port/addr)"
	default:
		return "errGeneric(" + strconv.Itoa(int(err)) + ")"
	}
}

// String returns the name of the ARP operation, or a numeric fallback.
func (op ARPOp) String() string {
	switch op {
	case ARPRequest:
		return "request"
	case ARPReply:
		return "reply"
	default:
		return "ARPOp(" + strconv.Itoa(int(op)) + ")"
	}
}
