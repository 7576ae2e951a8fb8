// Package flow implements the request/acknowledgement exchanges of MQTT as
// small state machines driven by the connection engine.
package flow

import (
	"sync"

	"github.com/RoanBrand/mqttc/internal/packet"
)

// Resolver completes the operation a flow belongs to. Only the first call has an effect.
type Resolver interface {
	Succeed(v interface{})
	Fail(err error)
}

// Flow is one exchange of packets.
// Start returns the packet to send first, or nil.
// Accept reports whether an inbound packet belongs to this flow.
// Next consumes an accepted packet and returns the reply to send, or nil.
type Flow interface {
	Start() packet.Packet
	Accept(p packet.Packet) bool
	Next(p packet.Packet) packet.Packet
}

// Func builds a flow bound to r.
type Func func(r Resolver) Flow

// startOnly is embedded by flows that are finished after Start.
type startOnly struct{}

func (startOnly) Accept(packet.Packet) bool { return false }
func (startOnly) Next(packet.Packet) packet.Packet { return nil }

// Identifiers hands out packet identifiers for one client.
// It wraps at 0xFFFF and never returns 0. [MQTT-2.3.1-1]
type Identifiers struct {
	mu   sync.Mutex
	last uint16
}

func (ids *Identifiers) Next() uint16 {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	ids.last++
	if ids.last == 0 {
		ids.last = 1
	}
	return ids.last
}
