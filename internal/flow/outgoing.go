package flow

import (
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
)

type connectFlow struct {
	c packet.Connect
	r Resolver
}

// OutgoingConnect sends c and resolves with the packet.ConnAck once it is accepted.
// Start may be called again to resend CONNECT.
func OutgoingConnect(c packet.Connect) Func {
	return func(r Resolver) Flow {
		return &connectFlow{c: c, r: r}
	}
}

func (f *connectFlow) Start() packet.Packet { return f.c }

func (f *connectFlow) Accept(p packet.Packet) bool {
	_, ok := p.(packet.ConnAck)
	return ok
}

func (f *connectFlow) Next(p packet.Packet) packet.Packet {
	ack := p.(packet.ConnAck)
	if ack.ReturnCode != packet.Accepted {
		f.r.Fail(&packet.ConnectError{ReturnCode: ack.ReturnCode})
	} else {
		f.r.Succeed(ack)
	}
	return nil
}

type publishState uint8

const (
	awaitingAck publishState = iota
	awaitingReceived
	awaitingComplete
	published
)

type publishFlow struct {
	p     packet.Publish
	r     Resolver
	state publishState
}

// OutgoingPublish sends msg with identifier id and resolves with msg once
// the QoS handshake is complete. QoS 0 resolves in Start.
func OutgoingPublish(msg model.Message, id uint16) Func {
	return func(r Resolver) Flow {
		f := &publishFlow{r: r, p: packet.Publish{
			Topic:   msg.Topic,
			Payload: msg.Payload,
			QoS:     msg.QoS,
			Retain:  msg.Retain,
			Dup:     msg.Duplicate,
		}}
		switch msg.QoS {
		case model.QoS1:
			f.p.ID, f.state = id, awaitingAck
		case model.QoS2:
			f.p.ID, f.state = id, awaitingReceived
		}
		return f
	}
}

func (f *publishFlow) Start() packet.Packet {
	if f.p.QoS == model.QoS0 {
		f.state = published
		f.r.Succeed(f.p.Message())
	}
	return f.p
}

func (f *publishFlow) Accept(p packet.Packet) bool {
	switch p := p.(type) {
	case packet.PubAck:
		return f.p.QoS == model.QoS1 && f.state == awaitingAck && p.ID == f.p.ID
	case packet.PubRec:
		return f.p.QoS == model.QoS2 && f.state == awaitingReceived && p.ID == f.p.ID
	case packet.PubComp:
		return f.p.QoS == model.QoS2 && f.state == awaitingComplete && p.ID == f.p.ID
	}
	return false
}

func (f *publishFlow) Next(p packet.Packet) packet.Packet {
	switch p.(type) {
	case packet.PubAck, packet.PubComp:
		f.state = published
		f.r.Succeed(f.p.Message())
	case packet.PubRec:
		f.state = awaitingComplete
		return packet.PubRel{ID: f.p.ID}
	}
	return nil
}

type subscribeFlow struct {
	sub packet.Subscription
	id  uint16
	r   Resolver
}

// OutgoingSubscribe subscribes to one topic filter and resolves with the granted QoS.
// A refusal fails with *packet.SubscribeError.
func OutgoingSubscribe(sub packet.Subscription, id uint16) Func {
	return func(r Resolver) Flow {
		return &subscribeFlow{sub: sub, id: id, r: r}
	}
}

func (f *subscribeFlow) Start() packet.Packet {
	return packet.Subscribe{ID: f.id, Subscriptions: []packet.Subscription{f.sub}}
}

func (f *subscribeFlow) Accept(p packet.Packet) bool {
	sa, ok := p.(packet.SubAck)
	return ok && sa.ID == f.id
}

func (f *subscribeFlow) Next(p packet.Packet) packet.Packet {
	sa := p.(packet.SubAck)
	for _, rc := range sa.ReturnCodes {
		if rc == model.QoSFail {
			f.r.Fail(&packet.SubscribeError{Topic: f.sub.Topic, ReturnCodes: sa.ReturnCodes})
			return nil
		}
	}
	f.r.Succeed(sa.ReturnCodes[0])
	return nil
}

type unsubscribeFlow struct {
	topic string
	id    uint16
	r     Resolver
}

// OutgoingUnsubscribe removes the subscription to topic.
func OutgoingUnsubscribe(topic string, id uint16) Func {
	return func(r Resolver) Flow {
		return &unsubscribeFlow{topic: topic, id: id, r: r}
	}
}

func (f *unsubscribeFlow) Start() packet.Packet {
	return packet.Unsubscribe{ID: f.id, Topics: []string{f.topic}}
}

func (f *unsubscribeFlow) Accept(p packet.Packet) bool {
	ua, ok := p.(packet.UnsubAck)
	return ok && ua.ID == f.id
}

func (f *unsubscribeFlow) Next(packet.Packet) packet.Packet {
	f.r.Succeed(nil)
	return nil
}

type pingFlow struct{ r Resolver }

// OutgoingPing sends PINGREQ and resolves on PINGRESP.
func OutgoingPing() Func {
	return func(r Resolver) Flow { return pingFlow{r} }
}

func (pingFlow) Start() packet.Packet { return packet.PingReq{} }

func (pingFlow) Accept(p packet.Packet) bool {
	_, ok := p.(packet.PingResp)
	return ok
}

func (f pingFlow) Next(packet.Packet) packet.Packet {
	f.r.Succeed(nil)
	return nil
}

type disconnectFlow struct {
	startOnly
	r Resolver
}

// OutgoingDisconnect sends DISCONNECT and resolves immediately.
func OutgoingDisconnect() Func {
	return func(r Resolver) Flow { return disconnectFlow{r: r} }
}

func (f disconnectFlow) Start() packet.Packet {
	f.r.Succeed(nil)
	return packet.Disconnect{}
}
