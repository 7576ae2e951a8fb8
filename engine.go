package mqttc

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttc/internal/flow"
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
	"github.com/RoanBrand/mqttc/internal/parser"
)

type activeFlow struct {
	id    uint64
	flow  flow.Flow
	token *Token
}

// startResolver holds back a resolution made inside Start until the
// packet Start returned was written. Only used under c.mu.
type startResolver struct {
	t       *Token
	started bool
	set     bool
	v       interface{}
	err     error
}

func (r *startResolver) Succeed(v interface{}) {
	if r.started {
		r.t.Succeed(v)
	} else if !r.set {
		r.set, r.v = true, v
	}
}

func (r *startResolver) Fail(err error) {
	if r.started {
		r.t.Fail(err)
	} else if !r.set {
		r.set, r.err = true, err
	}
}

func (r *startResolver) release() {
	r.started = true
	if !r.set {
		return
	}
	if r.err != nil {
		r.t.Fail(r.err)
	} else {
		r.t.Succeed(r.v)
	}
}

// startFlowLocked builds the flow, sends its first packet and keeps it
// active until it resolves. Requires c.mu.
func (c *Client) startFlowLocked(f flow.Func, onResolve func(interface{}, error)) *Token {
	t := newToken(onResolve)
	r := &startResolver{t: t}
	fl := f(r)

	if p := fl.Start(); p != nil {
		if err := c.writeLocked(p); err != nil {
			t.Fail(err)
			return t
		}
	}
	r.release()
	if !t.resolved() {
		c.lastFlowID++
		t.id = c.lastFlowID
		c.flows = append(c.flows, &activeFlow{id: t.id, flow: fl, token: t})
	}
	return t
}

// continueFlowsLocked offers p to every active flow in the order they were started.
// It reports whether any flow accepted it. Requires c.mu.
func (c *Client) continueFlowsLocked(p packet.Packet) bool {
	accepted := false
	for _, af := range c.flows {
		if af.token.resolved() || !af.flow.Accept(p) {
			continue
		}
		accepted = true
		if reply := af.flow.Next(p); reply != nil {
			if err := c.writeLocked(reply); err != nil {
				if af.token.resolved() {
					c.emitWarning(err)
				} else {
					af.token.Fail(err)
				}
			}
		}
	}

	active := c.flows[:0]
	for _, af := range c.flows {
		if !af.token.resolved() {
			active = append(active, af)
		}
	}
	for i := len(active); i < len(c.flows); i++ {
		c.flows[i] = nil
	}
	c.flows = active
	return accepted
}

// stopFlow removes an active flow and fails it with reason, ErrFlowCancelled if nil.
func (c *Client) stopFlow(id uint64, reason error) {
	c.mu.Lock()
	c.stopFlowLocked(id, reason)
	c.mu.Unlock()
}

func (c *Client) stopFlowLocked(id uint64, reason error) bool {
	if id == 0 {
		return false
	}
	for i, af := range c.flows {
		if af.id == id {
			c.flows = append(c.flows[:i], c.flows[i+1:]...)
			if reason == nil {
				reason = ErrFlowCancelled
			}
			af.token.Fail(reason)
			return true
		}
	}
	return false
}

// wait blocks for t. When ctx ends first the flow is stopped.
func (c *Client) wait(ctx context.Context, t *Token) (interface{}, error) {
	select {
	case <-t.Done():
		return t.Value(), t.Err()
	case <-ctx.Done():
		c.stopFlow(t.id, errors.Wrap(ErrFlowCancelled, ctx.Err().Error()))
		return nil, ctx.Err()
	}
}

// writeLocked encodes p and writes it to the connection. Requires c.mu.
func (c *Client) writeLocked(p packet.Packet) error {
	if c.conn == nil {
		return &DisconnectedError{}
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	b, err := packet.Write(p)
	if err != nil {
		return err
	}
	if t := p.Type(); t != model.PINGREQ && t != model.PINGRESP {
		c.logPacket(p, "sending")
	}
	if _, err = c.conn.Write(b); err != nil {
		err = errors.Wrapf(err, "writing %s", p.Type())
		c.breakConnectionLocked(err)
		return err
	}
	return nil
}

// breakConnectionLocked closes the connection after a failed write. The read
// loop then tears it down with err as the reason. Requires c.mu.
func (c *Client) breakConnectionLocked(err error) {
	if c.writeErr != nil {
		return
	}
	c.writeErr = err
	c.logger().WithError(err).Error("connection broken")
	if cerr := c.conn.Close(); cerr != nil {
		c.logger().WithError(cerr).Debug("closing connection")
	}
}

func (c *Client) logPacket(p packet.Packet, what string) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	lf := log.Fields{"clientId": c.Config.Connect.ClientID, "type": p.Type()}
	if id, ok := packet.Identifier(p); ok {
		lf["id"] = id
	}
	if pub, ok := p.(packet.Publish); ok {
		lf["topic"] = pub.Topic
		lf["qos"] = pub.QoS
	}
	log.WithFields(lf).Debug(what)
}

// connect dials the transport and runs the connect flow.
func (c *Client) connect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.setStateLocked(StateCreated)
	}
	if err := c.setStateLocked(StateConnecting); err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.mu.Unlock()

	c.logger().Info("connecting")
	conn, err := c.Transport.Connect(ctx)

	c.mu.Lock()
	if err != nil {
		if c.state == StateConnecting {
			c.setStateLocked(StateDisconnected)
			c.setStateLocked(StateCreated)
		}
		c.mu.Unlock()
		return false, err
	}
	if c.state != StateConnecting { // closed while dialing
		c.mu.Unlock()
		conn.Close()
		return false, &DisconnectedError{Reason: ErrClientDisconnect}
	}

	c.conn = conn
	go c.readLoop(conn, parser.New())

	t := c.startFlowLocked(flow.OutgoingConnect(c.connectPacket()), func(v interface{}, err error) {
		if err == nil {
			c.connAckLocked(v.(packet.ConnAck))
		}
	})
	c.connectFlow = t.id
	c.scheduleConnectResendLocked(conn)
	c.mu.Unlock()

	select {
	case <-t.Done():
	case <-ctx.Done():
		c.stopFlow(t.id, errors.Wrap(ErrFlowCancelled, ctx.Err().Error()))
		c.closeConnection(conn, ctx.Err())
		return false, ctx.Err()
	}

	if err := t.Err(); err != nil {
		c.closeConnection(conn, err)
		return false, err
	}
	return t.Value().(packet.ConnAck).SessionPresent, nil
}

// connAckLocked runs when the broker accepted the connection. Requires c.mu.
func (c *Client) connAckLocked(ack packet.ConnAck) {
	if err := c.setStateLocked(StateReady); err != nil {
		c.logger().WithError(err).Error("connection accepted in wrong state")
		return
	}
	c.connectFlow = 0
	if c.connTimer != nil {
		c.connTimer.Stop()
		c.connTimer = nil
	}

	c.logger().WithField("sessionPresent", ack.SessionPresent).Info("connected")
	c.emitConnect(ack.SessionPresent)
	c.schedulePingLocked()

	if ack.SessionPresent {
		return
	}
	// nothing the broker would still release
	if err := c.SessionStore.ClearInbound(); err != nil {
		c.logger().WithError(err).Error("unable to clear stored inbound messages")
	}

	if c.Config.Connect.Resubscribe {
		err := c.SessionStore.Subscriptions(func(filter string, qos model.QoS) {
			c.logger().WithField("topic", filter).Info("resubscribing")
			c.startFlowLocked(flow.OutgoingSubscribe(packet.Subscription{Topic: filter, QoS: qos}, c.ids.Next()),
				func(_ interface{}, err error) {
					if err != nil {
						c.emitWarning(errors.Wrapf(err, "resubscribe to %q", filter))
					}
				})
		})
		if err != nil {
			c.logger().WithError(err).Error("unable to load stored subscriptions")
		}
	}
}

func (c *Client) readLoop(conn io.ReadWriteCloser, p *parser.Parser) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			results, perr := p.Parse(buf[:n])
			for _, r := range results {
				if herr := c.handle(conn, r.Packet); herr != nil {
					c.connectionLost(conn, herr)
					return
				}
			}
			if perr != nil {
				c.emitError(perr)
				c.connectionLost(conn, perr)
				return
			}
		}
		if err != nil {
			if n := p.Buffered(); n > 0 {
				c.logger().WithField("bytes", n).Debug("connection ended inside a packet")
			}
			c.connectionLost(conn, err)
			return
		}
	}
}

// handle processes one inbound packet. A returned error tears down the connection.
func (c *Client) handle(conn io.ReadWriteCloser, p packet.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return nil
	}
	if t := p.Type(); t != model.PINGREQ && t != model.PINGRESP {
		c.logPacket(p, "received")
	}

	switch p := p.(type) {
	case packet.ConnAck:
		if c.state != StateConnecting || !c.continueFlowsLocked(p) {
			c.emitWarning(&UnexpectedPacketError{Type: model.CONNACK})
		}
	case packet.Publish:
		c.receivePublishLocked(p)
	case packet.PingReq:
		c.startFlowLocked(flow.IncomingPing(), nil)
	case packet.Disconnect:
		return ErrServerDisconnect
	case packet.Connect, packet.Subscribe, packet.Unsubscribe:
		c.emitWarning(&UnexpectedPacketError{Type: p.Type()})
	default:
		if c.continueFlowsLocked(p) {
			break
		}
		if rel, ok := p.(packet.PubRel); ok {
			c.releaseStoredLocked(rel.ID)
			break
		}
		c.emitWarning(&UnexpectedPacketError{Type: p.Type()})
	}
	return nil
}

// receivePublishLocked starts the incoming publish flow. QoS 2 messages are
// kept in the store until PUBREL so a resent PUBLISH is not delivered twice. Requires c.mu.
func (c *Client) receivePublishLocked(p packet.Publish) {
	if p.QoS != model.QoS2 {
		c.startFlowLocked(flow.IncomingPublish(p), c.deliver)
		return
	}

	seen, err := c.SessionStore.HasInbound(p.ID)
	if err != nil {
		c.logger().WithError(err).Error("unable to look up inbound message")
	}
	if seen {
		if err := c.writeLocked(packet.PubRec{ID: p.ID}); err != nil {
			c.logger().WithError(err).Warn("unable to resend PUBREC")
		}
		return
	}

	if err := c.SessionStore.PutInbound(p.ID, p.Message()); err != nil {
		c.logger().WithError(err).Error("unable to store inbound message")
	}
	c.startFlowLocked(flow.IncomingPublish(p), func(v interface{}, err error) {
		if err != nil {
			c.deliver(nil, err)
			return
		}
		if _, _, err := c.SessionStore.TakeInbound(p.ID); err != nil {
			c.logger().WithError(err).Error("unable to remove inbound message")
		}
		c.deliver(v, nil)
	})
}

// releaseStoredLocked answers a PUBREL whose flow did not survive a reconnect. Requires c.mu.
func (c *Client) releaseStoredLocked(id uint16) {
	msg, ok, err := c.SessionStore.TakeInbound(id)
	if err != nil {
		c.logger().WithError(err).Error("unable to load inbound message")
	}
	if ok {
		c.emitMessage(msg)
	}
	// PUBCOMP even when unknown, the broker has released it [MQTT-4.3.3-2]
	if err := c.writeLocked(packet.PubComp{ID: id}); err != nil {
		c.logger().WithError(err).Warn("unable to send PUBCOMP")
	}
}

// deliver is the resolve hook of incoming publish flows.
func (c *Client) deliver(v interface{}, err error) {
	switch {
	case err == nil:
		c.emitMessage(v.(Message))
	case !errors.Is(err, ErrDisconnected):
		c.emitWarning(errors.Wrap(err, "incoming publish"))
	}
}

// connectionLost tears down conn after a read error, a malformed packet or DISCONNECT
// from the broker. The reconnect strategy is consulted if the connection was ready.
func (c *Client) connectionLost(conn io.ReadWriteCloser, reason error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	if c.writeErr != nil {
		reason = c.writeErr
	}
	wasReady := c.state == StateReady
	c.logger().WithError(reason).Warn("connection lost")
	c.teardownLocked(reason, false)
	if wasReady {
		c.startReconnectLocked(reason)
	}
	c.mu.Unlock()
}

// closeConnection tears down conn without consulting the reconnect strategy.
func (c *Client) closeConnection(conn io.ReadWriteCloser, reason error) {
	c.mu.Lock()
	if c.conn == conn {
		c.teardownLocked(reason, false)
	}
	c.mu.Unlock()
}

// teardownLocked fails all active flows, stops the timers, closes the
// connection and resets the state to Created. Requires c.mu.
func (c *Client) teardownLocked(reason error, forced bool) {
	conn := c.conn
	if conn == nil {
		return
	}
	c.conn, c.writeErr = nil, nil

	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
	if c.connTimer != nil {
		c.connTimer.Stop()
		c.connTimer = nil
	}
	c.connectFlow, c.pingFlow = 0, 0

	flows := c.flows
	c.flows = nil
	for _, af := range flows {
		af.token.Fail(&DisconnectedError{Reason: reason})
	}

	if err := conn.Close(); err != nil {
		c.logger().WithError(err).Debug("closing connection")
	}

	if c.state == StateConnecting || c.state == StateReady {
		c.setStateLocked(StateDisconnected)
	}
	c.emitDisconnect(reason, forced)
	if c.state == StateDisconnected {
		c.setStateLocked(StateCreated)
	}

	c.logger().WithFields(log.Fields{"reason": reason, "forced": forced}).Info("disconnected")
}
