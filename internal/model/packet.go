package model

import "strconv"

// Type is the MQTT control packet type, the 4 MSB of the first header byte.
type Type uint8

// Control Packets
const (
	CONNECT Type = iota + 1
	CONNACK
	PUBLISH
	PUBACK
	PUBREC
	PUBREL
	PUBCOMP
	SUBSCRIBE
	SUBACK
	UNSUBSCRIBE
	UNSUBACK
	PINGREQ
	PINGRESP
	DISCONNECT
)

// Fixed header flags required for PUBREL, SUBSCRIBE and UNSUBSCRIBE. [MQTT-2.2.2-1]
const FlagsReserved = 0x02

// Publish header flags.
const (
	FlagRetain = 0x01
	FlagQoS    = 0x06
	FlagDup    = 0x08
)

// MaxRemainingLength is the largest value that fits 4 variable length bytes.
const MaxRemainingLength = 268435455

var typeNames = [...]string{
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
}

func (t Type) Valid() bool {
	return t >= CONNECT && t <= DISCONNECT
}

func (t Type) String() string {
	if !t.Valid() {
		return "RESERVED(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// Header returns the first byte of the fixed header.
func (t Type) Header(flags uint8) byte {
	return byte(t)<<4 | flags&0x0F
}

// ValidateFlags checks the fixed header flags received with a packet of this type.
func (t Type) ValidateFlags(flags uint8) bool {
	switch t {
	case PUBLISH:
		return true
	case PUBREL, SUBSCRIBE, UNSUBSCRIBE:
		return flags == FlagsReserved
	default:
		return flags == 0
	}
}

func VariableLengthEncode(packet []byte, l int) []byte {
	for {
		eb := l % 128
		l /= 128
		if l > 0 {
			eb |= 128
		}
		packet = append(packet, byte(eb))
		if l <= 0 {
			break
		}
	}
	return packet
}

func LengthToNumberOfVariableLengthBytes(l int) int {
	switch {
	case l < 128:
		return 1
	case l < 16384:
		return 2
	case l < 2097152:
		return 3
	default:
		return 4
	}
}
