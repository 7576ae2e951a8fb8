package packet

import (
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

// PUBACK, PUBREC, PUBREL, PUBCOMP and UNSUBACK carry nothing but the packet identifier.

type PubAck struct{ ID uint16 }
type PubRec struct{ ID uint16 }
type PubRel struct{ ID uint16 }
type PubComp struct{ ID uint16 }
type UnsubAck struct{ ID uint16 }

func (PubAck) Type() model.Type { return model.PUBACK }
func (PubRec) Type() model.Type { return model.PUBREC }
func (PubRel) Type() model.Type { return model.PUBREL }
func (PubComp) Type() model.Type { return model.PUBCOMP }
func (UnsubAck) Type() model.Type { return model.UNSUBACK }

func (PubAck) isPacket() {}
func (PubRec) isPacket() {}
func (PubRel) isPacket() {}
func (PubComp) isPacket() {}
func (UnsubAck) isPacket() {}

func encodeIdentifier(s *stream.Stream, id uint16, flags uint8) Header {
	s.PutWord(id)
	return Header{Flags: flags, ID: id, HasID: true}
}

func decodeIdentifier(s *stream.Stream, remaining int, t model.Type) (Packet, error) {
	if err := expectRemainingLength(t, remaining, 2); err != nil {
		return nil, err
	}
	id, err := s.ReadWord()
	if err != nil {
		return nil, err
	}

	switch t {
	case model.PUBACK:
		return PubAck{id}, nil
	case model.PUBREC:
		return PubRec{id}, nil
	case model.PUBREL:
		return PubRel{id}, nil
	case model.PUBCOMP:
		return PubComp{id}, nil
	case model.UNSUBACK:
		return UnsubAck{id}, nil
	default:
		return nil, malformed("%s has no identifier only body", t)
	}
}

// Identifier returns the packet identifier of p, if it has one.
func Identifier(p Packet) (uint16, bool) {
	switch p := p.(type) {
	case Publish:
		return p.ID, p.QoS > model.QoS0
	case PubAck:
		return p.ID, true
	case PubRec:
		return p.ID, true
	case PubRel:
		return p.ID, true
	case PubComp:
		return p.ID, true
	case Subscribe:
		return p.ID, true
	case SubAck:
		return p.ID, true
	case Unsubscribe:
		return p.ID, true
	case UnsubAck:
		return p.ID, true
	default:
		return 0, false
	}
}
