package packet

import (
	"fmt"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

// Subscription is one topic filter and the maximum QoS requested for it.
type Subscription struct {
	Topic string
	QoS   model.QoS
}

type Subscribe struct {
	ID            uint16
	Subscriptions []Subscription
}

type SubAck struct {
	ID          uint16
	ReturnCodes []model.QoS
}

type Unsubscribe struct {
	ID     uint16
	Topics []string
}

func (Subscribe) Type() model.Type { return model.SUBSCRIBE }
func (SubAck) Type() model.Type { return model.SUBACK }
func (Unsubscribe) Type() model.Type { return model.UNSUBSCRIBE }

func (Subscribe) isPacket() {}
func (SubAck) isPacket() {}
func (Unsubscribe) isPacket() {}

// SubscribeError is returned when the server refused a subscription.
type SubscribeError struct {
	Topic       string
	ReturnCodes []model.QoS
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("subscription to %q refused: return codes %v", e.Topic, e.ReturnCodes)
}

func encodeSubscribe(p Subscribe, s *stream.Stream) (Header, error) {
	if len(p.Subscriptions) == 0 { // [MQTT-3.8.3-3]
		return Header{}, malformed("SUBSCRIBE without topic filters")
	}
	s.PutWord(p.ID)
	for _, sub := range p.Subscriptions {
		if !sub.QoS.Valid() {
			return Header{}, ErrInvalidQoS
		}
		if err := CheckTopicFilter(sub.Topic); err != nil {
			return Header{}, malformed("topic filter %q: %v", sub.Topic, err)
		}
		if err := s.PutString(sub.Topic); err != nil {
			return Header{}, err
		}
		s.PutByte(byte(sub.QoS))
	}
	return Header{Flags: model.FlagsReserved, ID: p.ID, HasID: true}, nil
}

func decodeSubscribe(s *stream.Stream, remaining int) (Packet, error) {
	start := s.Position()
	id, err := s.ReadWord()
	if err != nil {
		return nil, err
	}
	p := Subscribe{ID: id}
	for s.Position()-start < remaining {
		topic, err := s.ReadString()
		if err != nil {
			return nil, endOfStream(err, "topic filter")
		}
		qos, err := s.ReadByte()
		if err != nil {
			return nil, err
		}
		if qos > byte(model.QoS2) { // [MQTT-3.8.3-4]
			return nil, malformed("invalid requested QoS 0x%X", qos)
		}
		p.Subscriptions = append(p.Subscriptions, Subscription{Topic: topic, QoS: model.QoS(qos)})
	}
	if len(p.Subscriptions) == 0 {
		return nil, malformed("SUBSCRIBE without topic filters")
	}
	if err := consumed(s, start, remaining, model.SUBSCRIBE); err != nil {
		return nil, err
	}
	return p, nil
}

func validReturnCode(q model.QoS) bool {
	return q.Valid() || q == model.QoSFail
}

func encodeSubAck(p SubAck, s *stream.Stream) (Header, error) {
	if len(p.ReturnCodes) == 0 {
		return Header{}, malformed("SUBACK without return codes")
	}
	s.PutWord(p.ID)
	for _, rc := range p.ReturnCodes {
		if !validReturnCode(rc) {
			return Header{}, malformed("invalid SUBACK return code 0x%X", uint8(rc))
		}
		s.PutByte(byte(rc))
	}
	return Header{ID: p.ID, HasID: true}, nil
}

func decodeSubAck(s *stream.Stream, remaining int) (Packet, error) {
	if remaining < 3 {
		return nil, malformed("SUBACK remaining length %d too short", remaining)
	}
	id, err := s.ReadWord()
	if err != nil {
		return nil, err
	}
	codes, err := s.ReadN(remaining - 2)
	if err != nil {
		return nil, err
	}

	p := SubAck{ID: id, ReturnCodes: make([]model.QoS, len(codes))}
	for i, c := range codes {
		if !validReturnCode(model.QoS(c)) { // [MQTT-3.9.3-2]
			return nil, malformed("invalid SUBACK return code 0x%X", c)
		}
		p.ReturnCodes[i] = model.QoS(c)
	}
	return p, nil
}

func encodeUnsubscribe(p Unsubscribe, s *stream.Stream) (Header, error) {
	if len(p.Topics) == 0 { // [MQTT-3.10.3-2]
		return Header{}, malformed("UNSUBSCRIBE without topic filters")
	}
	s.PutWord(p.ID)
	for _, t := range p.Topics {
		if err := CheckTopicFilter(t); err != nil {
			return Header{}, malformed("topic filter %q: %v", t, err)
		}
		if err := s.PutString(t); err != nil {
			return Header{}, err
		}
	}
	return Header{Flags: model.FlagsReserved, ID: p.ID, HasID: true}, nil
}

func decodeUnsubscribe(s *stream.Stream, remaining int) (Packet, error) {
	start := s.Position()
	id, err := s.ReadWord()
	if err != nil {
		return nil, err
	}
	p := Unsubscribe{ID: id}
	for s.Position()-start < remaining {
		topic, err := s.ReadString()
		if err != nil {
			return nil, endOfStream(err, "topic filter")
		}
		p.Topics = append(p.Topics, topic)
	}
	if len(p.Topics) == 0 {
		return nil, malformed("UNSUBSCRIBE without topic filters")
	}
	if err := consumed(s, start, remaining, model.UNSUBSCRIBE); err != nil {
		return nil, err
	}
	return p, nil
}
