package packet

import (
	"strconv"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

// ConnectReturnCode is the second byte of the CONNACK variable header.
type ConnectReturnCode uint8

const (
	Accepted ConnectReturnCode = iota
	UnacceptableProtocolVersion
	IdentifierRejected
	ServerUnavailable
	BadUsernameOrPassword
	NotAuthorized
)

var returnCodeNames = [...]string{
	Accepted:                    "Accepted",
	UnacceptableProtocolVersion: "UnacceptableProtocolVersion",
	IdentifierRejected:          "IdentifierRejected",
	ServerUnavailable:           "ServerUnavailable",
	BadUsernameOrPassword:       "BadUsernameOrPassword",
	NotAuthorized:               "NotAuthorized",
}

func (rc ConnectReturnCode) Valid() bool {
	return rc <= NotAuthorized
}

func (rc ConnectReturnCode) String() string {
	if !rc.Valid() {
		return "ConnectReturnCode(" + strconv.Itoa(int(rc)) + ")"
	}
	return returnCodeNames[rc]
}

// ConnectError is the failure of a connect flow refused by the server.
type ConnectError struct {
	ReturnCode ConnectReturnCode
}

func (e *ConnectError) Error() string {
	return e.ReturnCode.String()
}

type ConnAck struct {
	SessionPresent bool
	ReturnCode     ConnectReturnCode
}

func (ConnAck) Type() model.Type { return model.CONNACK }
func (ConnAck) isPacket() {}

func encodeConnAck(p ConnAck, s *stream.Stream) (Header, error) {
	if !p.ReturnCode.Valid() {
		return Header{}, malformed("invalid connect return code %d", p.ReturnCode)
	}
	var ack byte
	if p.SessionPresent {
		ack = 1
	}
	s.PutByte(ack)
	s.PutByte(byte(p.ReturnCode))
	return Header{}, nil
}

func decodeConnAck(s *stream.Stream, remaining int) (Packet, error) {
	if err := expectRemainingLength(model.CONNACK, remaining, 2); err != nil {
		return nil, err
	}
	ack, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	rc, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	if ack > 1 { // [MQTT-3.2.2-1]
		return nil, malformed("invalid CONNACK acknowledge flags 0x%X", ack)
	}
	if !ConnectReturnCode(rc).Valid() {
		return nil, malformed("invalid connect return code %d", rc)
	}
	return ConnAck{SessionPresent: ack == 1, ReturnCode: ConnectReturnCode(rc)}, nil
}
