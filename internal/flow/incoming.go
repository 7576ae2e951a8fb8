package flow

import (
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
)

type incomingPublishFlow struct {
	p        packet.Publish
	r        Resolver
	released bool
}

// IncomingPublish acknowledges a PUBLISH from the server and resolves with its
// message when it may be delivered. For QoS 2 that is on PUBREL.
func IncomingPublish(p packet.Publish) Func {
	return func(r Resolver) Flow {
		return &incomingPublishFlow{p: p, r: r}
	}
}

func (f *incomingPublishFlow) Start() packet.Packet {
	switch f.p.QoS {
	case model.QoS1:
		f.r.Succeed(f.p.Message())
		return packet.PubAck{ID: f.p.ID}
	case model.QoS2:
		return packet.PubRec{ID: f.p.ID}
	default:
		f.r.Succeed(f.p.Message())
		return nil
	}
}

func (f *incomingPublishFlow) Accept(p packet.Packet) bool {
	rel, ok := p.(packet.PubRel)
	return ok && f.p.QoS == model.QoS2 && !f.released && rel.ID == f.p.ID
}

func (f *incomingPublishFlow) Next(packet.Packet) packet.Packet {
	f.released = true
	f.r.Succeed(f.p.Message())
	return packet.PubComp{ID: f.p.ID}
}

type incomingPingFlow struct {
	startOnly
	r Resolver
}

// IncomingPing answers a PINGREQ from the server.
func IncomingPing() Func {
	return func(r Resolver) Flow { return incomingPingFlow{r: r} }
}

func (f incomingPingFlow) Start() packet.Packet {
	f.r.Succeed(nil)
	return packet.PingResp{}
}
