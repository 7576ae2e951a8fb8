// Package packet encodes and decodes the bodies of the 14 MQTT 3.1.1 control packets.
package packet

import (
	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

// Packet is one decoded or to be encoded control packet.
// It is implemented only by the 14 packet types of this package.
type Packet interface {
	Type() model.Type
	isPacket()
}

// Header holds what Encode determined for the fixed header.
type Header struct {
	Flags uint8
	ID    uint16
	HasID bool
}

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrInvalidQoS      = errors.New("invalid QoS")
)

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedPacket, format, args...)
}

// IsMalformed reports whether err is a malformed packet error.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPacket)
}

// Encode writes the body of p to s and returns what is needed to complete the fixed header.
func Encode(p Packet, s *stream.Stream) (Header, error) {
	switch p := p.(type) {
	case Connect:
		return encodeConnect(p, s)
	case ConnAck:
		return encodeConnAck(p, s)
	case Publish:
		return encodePublish(p, s)
	case PubAck:
		return encodeIdentifier(s, p.ID, 0), nil
	case PubRec:
		return encodeIdentifier(s, p.ID, 0), nil
	case PubRel:
		return encodeIdentifier(s, p.ID, model.FlagsReserved), nil
	case PubComp:
		return encodeIdentifier(s, p.ID, 0), nil
	case Subscribe:
		return encodeSubscribe(p, s)
	case SubAck:
		return encodeSubAck(p, s)
	case Unsubscribe:
		return encodeUnsubscribe(p, s)
	case UnsubAck:
		return encodeIdentifier(s, p.ID, 0), nil
	case PingReq, PingResp, Disconnect:
		return Header{}, nil
	case nil:
		return Header{}, errors.New("cannot encode nil packet")
	default:
		return Header{}, errors.Errorf("cannot encode packet of type %T", p)
	}
}

// Decode reads the body of a packet of type t from s. remaining is the
// declared remaining length and flags the fixed header flags.
// A stream.ErrEndOfStream error means the body is not completely buffered yet.
func Decode(s *stream.Stream, t model.Type, remaining int, flags uint8) (Packet, error) {
	if !t.ValidateFlags(flags) {
		return nil, malformed("invalid fixed header flags 0x%X for %s", flags, t)
	}
	if remaining < 0 {
		return nil, malformed("negative remaining length")
	}

	switch t {
	case model.CONNECT:
		return decodeConnect(s, remaining)
	case model.CONNACK:
		return decodeConnAck(s, remaining)
	case model.PUBLISH:
		return decodePublish(s, remaining, flags)
	case model.PUBACK, model.PUBREC, model.PUBREL, model.PUBCOMP, model.UNSUBACK:
		return decodeIdentifier(s, remaining, t)
	case model.SUBSCRIBE:
		return decodeSubscribe(s, remaining)
	case model.SUBACK:
		return decodeSubAck(s, remaining)
	case model.UNSUBSCRIBE:
		return decodeUnsubscribe(s, remaining)
	case model.PINGREQ:
		return PingReq{}, expectRemainingLength(t, remaining, 0)
	case model.PINGRESP:
		return PingResp{}, expectRemainingLength(t, remaining, 0)
	case model.DISCONNECT:
		return Disconnect{}, expectRemainingLength(t, remaining, 0)
	default:
		return nil, malformed("invalid control packet type %d", uint8(t))
	}
}

// Write encodes p into a complete packet: fixed header, remaining length and body.
func Write(p Packet) ([]byte, error) {
	if p == nil {
		return nil, errors.New("cannot write nil packet")
	}
	body := stream.New(make([]byte, 0, 64))
	h, err := Encode(p, body)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s", p.Type())
	}
	if h.Flags > 0x0F {
		return nil, errors.Errorf("invalid flags 0x%X", h.Flags)
	}

	l := body.Len()
	if l > model.MaxRemainingLength {
		return nil, errors.Errorf("%s too large (%d bytes)", p.Type(), l)
	}

	out := make([]byte, 1, 1+model.LengthToNumberOfVariableLengthBytes(l)+l)
	out[0] = p.Type().Header(h.Flags)
	out = model.VariableLengthEncode(out, l)
	return append(out, body.Bytes()...), nil
}

func expectRemainingLength(t model.Type, remaining, expected int) error {
	if remaining != expected {
		return malformed("%s remaining length must be %d, got %d", t, expected, remaining)
	}
	return nil
}

// consumed checks that a variable sized body used exactly its remaining length.
func consumed(s *stream.Stream, start, remaining int, t model.Type) error {
	if n := s.Position() - start; n != remaining {
		return malformed("%s consumed %d bytes, remaining length is %d", t, n, remaining)
	}
	return nil
}

// endOfStream tells decode errors that just need more data apart from the rest,
// which are all treated as a malformed packet.
func endOfStream(err error, what string) error {
	if errors.Is(err, stream.ErrEndOfStream) {
		return err
	}
	return malformed("%s: %v", what, err)
}
