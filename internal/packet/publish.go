package packet

import (
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

type Publish struct {
	Topic   string
	Payload []byte
	QoS     model.QoS
	Retain  bool
	Dup     bool
	ID      uint16 // only on the wire for QoS > 0
}

func (Publish) Type() model.Type { return model.PUBLISH }
func (Publish) isPacket() {}

// Message returns the application message carried by p.
func (p Publish) Message() model.Message {
	return model.Message{Topic: p.Topic, Payload: p.Payload, QoS: p.QoS, Retain: p.Retain, Duplicate: p.Dup}
}

func encodePublish(p Publish, s *stream.Stream) (Header, error) {
	if !p.QoS.Valid() {
		return Header{}, ErrInvalidQoS
	}
	if err := CheckTopicName(p.Topic); err != nil {
		return Header{}, malformed("topic %q: %v", p.Topic, err)
	}

	h := Header{Flags: uint8(p.QoS) << 1}
	if p.Retain {
		h.Flags |= model.FlagRetain
	}
	if p.Dup {
		h.Flags |= model.FlagDup
	}

	if err := s.PutString(p.Topic); err != nil {
		return Header{}, err
	}
	if p.QoS > model.QoS0 {
		s.PutWord(p.ID)
		h.ID, h.HasID = p.ID, true
	}
	s.Write(p.Payload)
	return h, nil
}

func decodePublish(s *stream.Stream, remaining int, flags uint8) (Packet, error) {
	p := Publish{
		QoS:    model.QoS(flags & model.FlagQoS >> 1),
		Retain: flags&model.FlagRetain != 0,
		Dup:    flags&model.FlagDup != 0,
	}
	if !p.QoS.Valid() { // [MQTT-3.3.1-4]
		return nil, malformed("PUBLISH with QoS 3")
	}
	if p.Dup && p.QoS == model.QoS0 { // [MQTT-3.3.1-2]
		return nil, malformed("PUBLISH QoS 0 with DUP set")
	}

	start := s.Position()
	var err error
	if p.Topic, err = s.ReadString(); err != nil {
		return nil, endOfStream(err, "topic")
	}
	if p.QoS > model.QoS0 {
		if p.ID, err = s.ReadWord(); err != nil {
			return nil, err
		}
	}

	n := remaining - (s.Position() - start)
	if n < 0 {
		return nil, malformed("PUBLISH remaining length %d shorter than its header", remaining)
	}
	payload, err := s.ReadN(n)
	if err != nil {
		return nil, err
	}
	p.Payload = append([]byte{}, payload...)
	return p, nil
}
