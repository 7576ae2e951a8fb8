// Package store keeps the client session state that has to outlive a connection:
// granted subscriptions and inbound QoS 2 messages between PUBREC and PUBREL.
package store

import (
	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

type Store interface {
	AddSubscription(topic string, qos model.QoS) error
	RemoveSubscription(topic string) error
	// Subscriptions calls iter for every recorded subscription.
	Subscriptions(iter func(topic string, qos model.QoS)) error

	// PutInbound records a received QoS 2 message until its PUBREL.
	PutInbound(id uint16, msg model.Message) error
	// TakeInbound removes and returns the message recorded for id.
	TakeInbound(id uint16) (model.Message, bool, error)
	HasInbound(id uint16) (bool, error)
	// ClearInbound forgets all inbound messages, for a new session.
	ClearInbound() error

	Close() error
}

const (
	msgFlagRetain = 0x01
	msgFlagDup    = 0x02
)

// encodeMessage serializes msg as: flags, QoS, topic string, payload.
func encodeMessage(msg model.Message) ([]byte, error) {
	s := stream.New(make([]byte, 0, 4+len(msg.Topic)+len(msg.Payload)))
	var flags byte
	if msg.Retain {
		flags |= msgFlagRetain
	}
	if msg.Duplicate {
		flags |= msgFlagDup
	}
	s.PutByte(flags)
	s.PutByte(byte(msg.QoS))
	if err := s.PutString(msg.Topic); err != nil {
		return nil, err
	}
	s.Write(msg.Payload)
	return s.Bytes(), nil
}

func decodeMessage(b []byte) (model.Message, error) {
	s := stream.New(b)
	flags, err := s.ReadByte()
	if err != nil {
		return model.Message{}, errors.Wrap(err, "stored message flags")
	}
	qos, err := s.ReadByte()
	if err != nil {
		return model.Message{}, errors.Wrap(err, "stored message QoS")
	}
	topic, err := s.ReadString()
	if err != nil {
		return model.Message{}, errors.Wrap(err, "stored message topic")
	}
	payload, _ := s.ReadN(s.Remaining())

	return model.Message{
		Topic:     topic,
		Payload:   append([]byte{}, payload...),
		QoS:       model.QoS(qos),
		Retain:    flags&msgFlagRetain != 0,
		Duplicate: flags&msgFlagDup != 0,
	}, nil
}
