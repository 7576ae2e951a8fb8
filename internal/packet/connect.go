package packet

import (
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

const (
	ProtocolName  = "MQTT"
	ProtocolLevel = 4
)

// CONNECT flags
const (
	connectFlagReserved     = 0x01
	connectFlagCleanSession = 0x02
	connectFlagWill         = 0x04
	connectFlagWillQoS      = 0x18
	connectFlagWillRetain   = 0x20
	connectFlagPassword     = 0x40
	connectFlagUsername     = 0x80
)

type Connect struct {
	// ProtocolName and ProtocolLevel default to "MQTT" and 4 when empty.
	ProtocolName  string
	ProtocolLevel uint8

	ClientID     string
	KeepAlive    uint16 // seconds
	CleanSession bool
	Will         *model.Message

	Username    string
	HasUsername bool
	Password    []byte
	HasPassword bool
}

func (Connect) Type() model.Type { return model.CONNECT }
func (Connect) isPacket() {}

func encodeConnect(p Connect, s *stream.Stream) (Header, error) {
	name, level := p.ProtocolName, p.ProtocolLevel
	if name == "" {
		name = ProtocolName
	}
	if level == 0 {
		level = ProtocolLevel
	}
	if p.HasPassword && !p.HasUsername { // [MQTT-3.1.2-22]
		return Header{}, malformed("password set without username")
	}

	var flags uint8
	if p.CleanSession {
		flags |= connectFlagCleanSession
	}
	if p.Will != nil {
		if !p.Will.QoS.Valid() {
			return Header{}, ErrInvalidQoS
		}
		if err := CheckTopicName(p.Will.Topic); err != nil {
			return Header{}, malformed("will topic: %v", err)
		}
		flags |= connectFlagWill | uint8(p.Will.QoS)<<3
		if p.Will.Retain {
			flags |= connectFlagWillRetain
		}
	}
	if p.HasUsername {
		flags |= connectFlagUsername
	}
	if p.HasPassword {
		flags |= connectFlagPassword
	}
	if err := checkUTF8(p.ClientID, false); err != nil {
		return Header{}, malformed("client id: %v", err)
	}

	if err := s.PutString(name); err != nil {
		return Header{}, err
	}
	s.PutByte(level)
	s.PutByte(flags)
	s.PutWord(p.KeepAlive)
	if err := s.PutString(p.ClientID); err != nil {
		return Header{}, err
	}
	if p.Will != nil {
		if err := s.PutString(p.Will.Topic); err != nil {
			return Header{}, err
		}
		if err := s.PutBytes(p.Will.Payload); err != nil {
			return Header{}, err
		}
	}
	if p.HasUsername {
		if err := s.PutString(p.Username); err != nil {
			return Header{}, err
		}
	}
	if p.HasPassword {
		if err := s.PutBytes(p.Password); err != nil {
			return Header{}, err
		}
	}
	return Header{}, nil
}

func decodeConnect(s *stream.Stream, remaining int) (Packet, error) {
	start := s.Position()
	var p Connect
	var err error

	if p.ProtocolName, err = s.ReadString(); err != nil {
		return nil, endOfStream(err, "protocol name")
	}
	if p.ProtocolLevel, err = s.ReadByte(); err != nil {
		return nil, err
	}
	flags, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if flags&connectFlagReserved != 0 { // [MQTT-3.1.2-3]
		return nil, malformed("CONNECT reserved flag set")
	}
	if p.KeepAlive, err = s.ReadWord(); err != nil {
		return nil, err
	}
	if p.ClientID, err = s.ReadString(); err != nil {
		return nil, endOfStream(err, "client id")
	}
	p.CleanSession = flags&connectFlagCleanSession != 0

	if flags&connectFlagWill != 0 {
		qos := model.QoS(flags & connectFlagWillQoS >> 3)
		if !qos.Valid() {
			return nil, malformed("invalid will QoS %d", qos)
		}
		w := model.Message{QoS: qos, Retain: flags&connectFlagWillRetain != 0}
		if w.Topic, err = s.ReadString(); err != nil {
			return nil, endOfStream(err, "will topic")
		}
		payload, err := s.ReadStringBytes()
		if err != nil {
			return nil, err
		}
		w.Payload = append([]byte(nil), payload...)
		p.Will = &w
	} else if flags&(connectFlagWillQoS|connectFlagWillRetain) != 0 { // [MQTT-3.1.2-11]
		return nil, malformed("will QoS or retain set without will flag")
	}

	if flags&connectFlagUsername != 0 {
		if p.Username, err = s.ReadString(); err != nil {
			return nil, endOfStream(err, "username")
		}
		p.HasUsername = true
	} else if flags&connectFlagPassword != 0 {
		return nil, malformed("password flag set without username flag")
	}
	if flags&connectFlagPassword != 0 {
		pw, err := s.ReadStringBytes()
		if err != nil {
			return nil, err
		}
		p.Password, p.HasPassword = append([]byte(nil), pw...), true
	}
	if err := consumed(s, start, remaining, model.CONNECT); err != nil {
		return nil, err
	}
	return p, nil
}
