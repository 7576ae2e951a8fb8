package packet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/stream"
)

// readPacket decodes one complete packet from b.
func readPacket(b []byte) (Packet, error) {
	s := stream.New(b)
	h, err := s.ReadByte()
	if err != nil {
		return nil, err
	}
	l, err := s.ReadVariableByteInteger()
	if err != nil {
		return nil, err
	}
	return Decode(s, model.Type(h>>4), l, h&0x0F)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, p := range []Packet{
		Connect{ClientID: "c1", KeepAlive: 60, CleanSession: true},
		Connect{
			ProtocolName:  ProtocolName,
			ProtocolLevel: ProtocolLevel,
			ClientID:      "c2",
			KeepAlive:     10,
			Will:          &model.Message{Topic: "will/t", Payload: []byte("bye"), QoS: model.QoS1, Retain: true},
			Username:      "user",
			HasUsername:   true,
			Password:      []byte("pw"),
			HasPassword:   true,
		},
		ConnAck{SessionPresent: true, ReturnCode: Accepted},
		ConnAck{ReturnCode: NotAuthorized},
		Publish{Topic: "a/b", Payload: []byte("hello"), QoS: model.QoS0, Retain: true},
		Publish{Topic: "a/b", Payload: []byte{}, QoS: model.QoS1, ID: 1},
		Publish{Topic: "a", Payload: []byte{0}, QoS: model.QoS2, ID: 0xFFFF, Dup: true},
		PubAck{1}, PubRec{7}, PubRel{7}, PubComp{0}, UnsubAck{0xFFFF},
		Subscribe{ID: 2, Subscriptions: []Subscription{{"a/+", model.QoS1}, {"#", model.QoS2}}},
		SubAck{ID: 2, ReturnCodes: []model.QoS{model.QoS1, model.QoSFail}},
		Unsubscribe{ID: 3, Topics: []string{"a/+", "b"}},
		PingReq{}, PingResp{}, Disconnect{},
	} {
		b, err := Write(p)
		require.NoError(t, err, "%T", p)

		got, err := readPacket(b)
		require.NoError(t, err, "%T", p)
		if c, ok := p.(Connect); ok && c.ProtocolName == "" {
			c.ProtocolName, c.ProtocolLevel = ProtocolName, ProtocolLevel
			p = c
		}
		require.Equal(t, p, got)
	}
}

func TestWireBytes(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		p   Packet
		exp []byte
	}{
		{Publish{Topic: "A", QoS: model.QoS1, ID: 1}, []byte{0x32, 0x05, 0x00, 0x01, 'A', 0x00, 0x01}},
		{Publish{Topic: "A"}, []byte{0x30, 0x03, 0x00, 0x01, 'A'}},
		{PubAck{1}, []byte{0x40, 0x02, 0x00, 0x01}},
		{PubRel{7}, []byte{0x62, 0x02, 0x00, 0x07}},
		{Subscribe{ID: 1, Subscriptions: []Subscription{{"t", model.QoS0}}}, []byte{0x82, 0x06, 0x00, 0x01, 0x00, 0x01, 't', 0x00}},
		{Unsubscribe{ID: 1, Topics: []string{"t"}}, []byte{0xA2, 0x05, 0x00, 0x01, 0x00, 0x01, 't'}},
		{PingReq{}, []byte{0xC0, 0x00}},
		{Disconnect{}, []byte{0xE0, 0x00}},
		{
			Connect{ClientID: "id", KeepAlive: 60, CleanSession: true},
			[]byte{0x10, 0x0E, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x02, 0x00, 0x3C, 0x00, 0x02, 'i', 'd'},
		},
	} {
		b, err := Write(test.p)
		require.NoError(t, err)
		require.Equal(t, test.exp, b, "%T", test.p)
	}
}

func TestConnAckScenarios(t *testing.T) {
	t.Parallel()

	p, err := readPacket([]byte{0x20, 0x02, 0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, ConnAck{SessionPresent: true, ReturnCode: Accepted}, p)

	p, err = readPacket([]byte{0x20, 0x02, 0x00, 0x02})
	require.NoError(t, err)
	ca := p.(ConnAck)
	require.Equal(t, "IdentifierRejected", (&ConnectError{ca.ReturnCode}).Error())
}

func TestMalformed(t *testing.T) {
	t.Parallel()

	for name, b := range map[string][]byte{
		"connack length":       {0x20, 0x03, 0x00, 0x00, 0x00},
		"connack flags":        {0x20, 0x02, 0x02, 0x00},
		"connack return code":  {0x20, 0x02, 0x00, 0x06},
		"connack header flags": {0x21, 0x02, 0x00, 0x00},
		"pubrel flags":         {0x60, 0x02, 0x00, 0x01},
		"puback length":        {0x40, 0x03, 0x00, 0x01, 0x00},
		"pingresp length":      {0xD0, 0x01, 0x00},
		"publish qos 3":        {0x36, 0x03, 0x00, 0x01, 'A'},
		"publish dup qos 0":    {0x38, 0x03, 0x00, 0x01, 'A'},
		"publish short":        {0x32, 0x02, 0x00, 0x01, 'A', 0x00, 0x01},
		"suback empty":         {0x90, 0x02, 0x00, 0x01},
		"suback code":          {0x90, 0x03, 0x00, 0x01, 0x03},
		"subscribe none":       {0x82, 0x02, 0x00, 0x01},
		"subscribe qos":        {0x82, 0x06, 0x00, 0x01, 0x00, 0x01, 't', 0x03},
		"connect reserved":     {0x10, 0x0C, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x01, 0x00, 0x3C, 0x00, 0x00},
		"reserved type":        {0xF0, 0x00},
	} {
		_, err := readPacket(b)
		require.True(t, IsMalformed(err), "%s: %v", name, err)
	}
}

func TestEndOfStream(t *testing.T) {
	t.Parallel()

	// body declared longer than what is buffered
	for _, b := range [][]byte{
		{0x30, 0x05, 0x00, 0x01, 'A'},
		{0x40, 0x02, 0x00},
		{0x90, 0x04, 0x00, 0x01, 0x00},
	} {
		_, err := readPacket(b)
		require.True(t, errors.Is(err, stream.ErrEndOfStream), "% X: %v", b, err)
		require.False(t, IsMalformed(err))
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Parallel()

	for _, p := range []Packet{
		Publish{Topic: "a/+"},
		Publish{Topic: ""},
		Publish{Topic: "a", QoS: 3},
		Publish{Topic: "a\x00"},
		Subscribe{ID: 1},
		Subscribe{ID: 1, Subscriptions: []Subscription{{"a/#/b", model.QoS0}}},
		Unsubscribe{ID: 1},
		SubAck{ID: 1, ReturnCodes: []model.QoS{3}},
		Connect{ClientID: "c", Password: []byte("x"), HasPassword: true},
		nil,
	} {
		_, err := Write(p)
		require.Error(t, err, "%#v", p)
	}
}

func TestIdentifier(t *testing.T) {
	t.Parallel()

	id, ok := Identifier(Publish{Topic: "a", ID: 5})
	require.False(t, ok)
	id, ok = Identifier(Publish{Topic: "a", QoS: model.QoS1, ID: 5})
	require.True(t, ok)
	require.EqualValues(t, 5, id)
	_, ok = Identifier(PingResp{})
	require.False(t, ok)
}

func TestCheckTopicFilter(t *testing.T) {
	t.Parallel()

	for _, f := range []string{"#", "+", "a/+/b", "a/#", "+/+", "/"} {
		require.NoError(t, CheckTopicFilter(f), f)
	}
	for _, f := range []string{"", "a#", "a/#/b", "a+", "a/b+/c"} {
		require.Error(t, CheckTopicFilter(f), f)
	}
}
