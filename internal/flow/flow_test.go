package flow

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
)

type resolver struct {
	successes int
	value     interface{}
	err       error
}

func (r *resolver) Succeed(v interface{}) {
	r.successes++
	r.value = v
}

func (r *resolver) Fail(err error) { r.err = err }

func (r *resolver) resolved() bool { return r.successes > 0 || r.err != nil }

func TestOutgoingPublishQoS2(t *testing.T) {
	t.Parallel()

	r := &resolver{}
	msg := model.Message{Topic: "t", Payload: []byte("x"), QoS: model.QoS2}
	f := OutgoingPublish(msg, 7)(r)

	p := f.Start()
	require.Equal(t, packet.Publish{Topic: "t", Payload: []byte("x"), QoS: model.QoS2, ID: 7}, p)
	require.False(t, r.resolved())

	require.False(t, f.Accept(packet.PubComp{ID: 7}), "PUBCOMP before PUBREC")
	require.False(t, f.Accept(packet.PubRec{ID: 8}))
	require.False(t, f.Accept(packet.PubAck{ID: 7}))

	require.True(t, f.Accept(packet.PubRec{ID: 7}))
	require.Equal(t, packet.PubRel{ID: 7}, f.Next(packet.PubRec{ID: 7}))
	require.False(t, r.resolved())
	require.False(t, f.Accept(packet.PubRec{ID: 7}), "second PUBREC")

	require.True(t, f.Accept(packet.PubComp{ID: 7}))
	require.Nil(t, f.Next(packet.PubComp{ID: 7}))
	require.Equal(t, 1, r.successes)
	require.Equal(t, msg, r.value)
	require.False(t, f.Accept(packet.PubComp{ID: 7}))
}

func TestOutgoingPublishQoS1(t *testing.T) {
	t.Parallel()

	r := &resolver{}
	f := OutgoingPublish(model.Message{Topic: "A", QoS: model.QoS1}, 1)(r)
	b, err := packet.Write(f.Start())
	require.NoError(t, err)
	require.Equal(t, []byte{0x32, 0x05, 0x00, 0x01, 'A', 0x00, 0x01}, b)

	require.False(t, f.Accept(packet.PubAck{ID: 2}))
	require.True(t, f.Accept(packet.PubAck{ID: 1}))
	require.Nil(t, f.Next(packet.PubAck{ID: 1}))
	require.Equal(t, 1, r.successes)
}

func TestOutgoingPublishQoS0(t *testing.T) {
	t.Parallel()

	r := &resolver{}
	f := OutgoingPublish(model.Message{Topic: "A"}, 5)(r)
	p := f.Start().(packet.Publish)
	require.EqualValues(t, 0, p.ID)
	require.Equal(t, 1, r.successes)
	require.False(t, f.Accept(packet.PubAck{ID: 5}))
}

func TestOutgoingConnect(t *testing.T) {
	t.Parallel()

	c := packet.Connect{ClientID: "c", KeepAlive: 60, CleanSession: true}

	r := &resolver{}
	f := OutgoingConnect(c)(r)
	require.Equal(t, c, f.Start())
	require.Equal(t, c, f.Start(), "resend")
	require.False(t, f.Accept(packet.PingResp{}))
	require.True(t, f.Accept(packet.ConnAck{SessionPresent: true}))
	f.Next(packet.ConnAck{SessionPresent: true})
	require.Equal(t, packet.ConnAck{SessionPresent: true}, r.value)

	r = &resolver{}
	f = OutgoingConnect(c)(r)
	f.Start()
	f.Next(packet.ConnAck{ReturnCode: packet.IdentifierRejected})
	require.Equal(t, 0, r.successes)
	var ce *packet.ConnectError
	require.True(t, errors.As(r.err, &ce))
	require.Equal(t, "IdentifierRejected", r.err.Error())
}

func TestOutgoingSubscribe(t *testing.T) {
	t.Parallel()

	sub := packet.Subscription{Topic: "a/+", QoS: model.QoS2}

	r := &resolver{}
	f := OutgoingSubscribe(sub, 3)(r)
	require.Equal(t, packet.Subscribe{ID: 3, Subscriptions: []packet.Subscription{sub}}, f.Start())
	require.False(t, f.Accept(packet.SubAck{ID: 4, ReturnCodes: []model.QoS{model.QoS1}}))
	require.True(t, f.Accept(packet.SubAck{ID: 3, ReturnCodes: []model.QoS{model.QoS1}}))
	f.Next(packet.SubAck{ID: 3, ReturnCodes: []model.QoS{model.QoS1}})
	require.Equal(t, model.QoS1, r.value)

	r = &resolver{}
	f = OutgoingSubscribe(sub, 3)(r)
	f.Start()
	f.Next(packet.SubAck{ID: 3, ReturnCodes: []model.QoS{model.QoSFail}})
	var se *packet.SubscribeError
	require.True(t, errors.As(r.err, &se))
	require.Equal(t, "a/+", se.Topic)
}

func TestOutgoingUnsubscribePingDisconnect(t *testing.T) {
	t.Parallel()

	r := &resolver{}
	f := OutgoingUnsubscribe("a", 9)(r)
	require.Equal(t, packet.Unsubscribe{ID: 9, Topics: []string{"a"}}, f.Start())
	require.False(t, f.Accept(packet.UnsubAck{ID: 8}))
	require.True(t, f.Accept(packet.UnsubAck{ID: 9}))
	f.Next(packet.UnsubAck{ID: 9})
	require.Equal(t, 1, r.successes)

	r = &resolver{}
	f = OutgoingPing()(r)
	require.Equal(t, packet.PingReq{}, f.Start())
	require.True(t, f.Accept(packet.PingResp{}))
	f.Next(packet.PingResp{})
	require.Equal(t, 1, r.successes)

	r = &resolver{}
	f = OutgoingDisconnect()(r)
	require.Equal(t, packet.Disconnect{}, f.Start())
	require.Equal(t, 1, r.successes)
	require.False(t, f.Accept(packet.PingResp{}))
}

func TestIncomingPublish(t *testing.T) {
	t.Parallel()

	r := &resolver{}
	f := IncomingPublish(packet.Publish{Topic: "t"})(r)
	require.Nil(t, f.Start())
	require.Equal(t, 1, r.successes)

	r = &resolver{}
	f = IncomingPublish(packet.Publish{Topic: "t", QoS: model.QoS1, ID: 4})(r)
	require.Equal(t, packet.PubAck{ID: 4}, f.Start())
	require.Equal(t, 1, r.successes)

	r = &resolver{}
	f = IncomingPublish(packet.Publish{Topic: "t", Payload: []byte("p"), QoS: model.QoS2, ID: 7})(r)
	require.Equal(t, packet.PubRec{ID: 7}, f.Start())
	require.False(t, r.resolved())
	require.False(t, f.Accept(packet.PubRel{ID: 6}))
	require.True(t, f.Accept(packet.PubRel{ID: 7}))
	require.Equal(t, packet.PubComp{ID: 7}, f.Next(packet.PubRel{ID: 7}))
	require.Equal(t, 1, r.successes)
	require.Equal(t, model.Message{Topic: "t", Payload: []byte("p"), QoS: model.QoS2}, r.value)
	require.False(t, f.Accept(packet.PubRel{ID: 7}))
}

func TestIncomingPing(t *testing.T) {
	t.Parallel()

	r := &resolver{}
	require.Equal(t, packet.PingResp{}, IncomingPing()(r).Start())
	require.Equal(t, 1, r.successes)
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()

	ids := &Identifiers{last: 0xFFFE}
	require.EqualValues(t, 0xFFFF, ids.Next())
	require.EqualValues(t, 1, ids.Next(), "0 is skipped")

	var wg sync.WaitGroup
	seen := make(chan uint16, 1000)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seen <- ids.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint16]struct{})
	for id := range seen {
		unique[id] = struct{}{}
	}
	require.Len(t, unique, 1000)
}
