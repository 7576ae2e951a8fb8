// Package mqttc is an MQTT 3.1.1 client.
//
// A Client keeps one connection to a broker, correlates every request with
// its acknowledgement and re-establishes the connection when it is lost.
package mqttc

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttc/internal/config"
	"github.com/RoanBrand/mqttc/internal/flow"
	"github.com/RoanBrand/mqttc/internal/model"
	"github.com/RoanBrand/mqttc/internal/packet"
	"github.com/RoanBrand/mqttc/internal/queue"
	"github.com/RoanBrand/mqttc/internal/reconnect"
	"github.com/RoanBrand/mqttc/internal/router"
	"github.com/RoanBrand/mqttc/internal/store"
	"github.com/RoanBrand/mqttc/internal/transport"
)

type Client struct {
	config.Config

	// Transport, Strategy and SessionStore are built from Config when nil.
	// Set Config.Reconnect.Disabled to never reconnect.
	Transport    transport.Transport
	Strategy     reconnect.Strategy
	SessionStore store.Store

	initOnce sync.Once
	initErr  error

	mu          sync.Mutex // guards everything below and writes to conn
	state       State
	conn        io.ReadWriteCloser
	flows       []*activeFlow
	lastFlowID  uint64
	connectFlow uint64
	pingFlow    uint64
	keepAlive   time.Duration
	keepAliveOK bool // keepAlive was set by SetKeepAlive
	writeErr    error // last write failure on conn
	pingTimer   *time.Timer
	connTimer   *time.Timer
	reconnector *reconnector

	ids       flow.Identifiers
	router    *router.Router
	observers observers

	events     queue.Basic
	closed     int32
	killed     int32 // stops the dispatcher
	dispatchWG sync.WaitGroup
}

// NewClient returns a client in state Created. Configure it through the
// embedded Config, or LoadFromFile, before Connect.
func NewClient() *Client {
	c := &Client{router: router.New()}
	c.events.Init()
	c.dispatchWG.Add(1)
	go c.events.StartDispatcher(c.dispatch, &c.killed, &c.dispatchWG)
	return c
}

// init completes the configuration on first Connect.
func (c *Client) init() error {
	c.initOnce.Do(func() {
		if c.initErr = c.Config.Validate(); c.initErr != nil {
			return
		}
		if c.initErr = c.setupLogging(); c.initErr != nil {
			return
		}

		if c.Transport == nil {
			if c.Transport, c.initErr = transport.FromConfig(&c.Config); c.initErr != nil {
				return
			}
		}

		if c.Strategy == nil && !c.Config.Reconnect.Disabled {
			r, d := c.Config.Reconnect, reconnect.NewDefault()
			if r.MaxAttempts > 0 {
				d.MaxAttempts = r.MaxAttempts
			}
			if r.IntervalMS > 0 {
				d.Interval = time.Duration(r.IntervalMS) * time.Millisecond
			}
			d.Multiplier = r.Multiplier
			d.MaxInterval = time.Duration(r.MaxIntervalMS) * time.Millisecond
			d.Jitter = r.Jitter
			c.Strategy = d
		}

		if c.SessionStore == nil {
			if c.Config.Store.Dir != "" {
				if c.SessionStore, c.initErr = store.NewDisk(c.Config.Store.Dir); c.initErr != nil {
					return
				}
			} else {
				c.SessionStore = store.NewMemory()
			}
		}

		c.mu.Lock()
		if !c.keepAliveOK {
			c.keepAlive = c.KeepAliveDuration()
		}
		c.mu.Unlock()

		c.logger().WithFields(log.Fields{
			"network": c.Broker.Network,
			"address": c.Broker.Address,
		}).Info("client configured")
	})
	return c.initErr
}

func (c *Client) setupLogging() error {
	if c.Log.File != "" {
		f, err := os.OpenFile(c.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}
	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "error":
			log.SetLevel(log.ErrorLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "info":
			log.SetLevel(log.InfoLevel)
		case "debug":
			log.SetLevel(log.DebugLevel)
		}
	}
	return nil
}

// connectPacket builds CONNECT from the configuration.
func (c *Client) connectPacket() packet.Connect {
	cn := &c.Config.Connect
	p := packet.Connect{
		ClientID:     cn.ClientID,
		CleanSession: !cn.PersistentSession,
		Username:     cn.Username,
		HasUsername:  cn.Username != "",
		Password:     []byte(cn.Password),
		HasPassword:  cn.Password != "",
	}
	if !p.HasPassword {
		p.Password = nil
	}
	if cn.KeepAlive > 0 {
		p.KeepAlive = uint16(cn.KeepAlive)
	}
	if cn.Will != nil {
		p.Will = &model.Message{
			Topic:   cn.Will.Topic,
			Payload: []byte(cn.Will.Payload),
			QoS:     model.QoS(cn.Will.QoS),
			Retain:  cn.Will.Retain,
		}
	}
	return p
}

// Connect opens the transport and sends CONNECT. It returns once the broker
// answered, with the session present flag of CONNACK.
// A refused connection returns a *ConnectError. Connect does not retry by itself:
// the reconnect strategy is only consulted once a connection was lost.
func (c *Client) Connect(ctx context.Context) (sessionPresent bool, err error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return false, ErrClosed
	}
	if err := c.init(); err != nil {
		return false, err
	}
	return c.connect(ctx)
}

// Publish sends msg and returns once its QoS handshake completed.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if err := packet.CheckTopicName(msg.Topic); err != nil {
		return errors.Wrapf(err, "publish to %q", msg.Topic)
	}
	if !msg.QoS.Valid() {
		return packet.ErrInvalidQoS
	}

	c.mu.Lock()
	if err := c.expectStateLocked(StateReady); err != nil {
		c.mu.Unlock()
		return err
	}
	var id uint16
	if msg.QoS > QoS0 {
		id = c.ids.Next()
	}
	t := c.startFlowLocked(flow.OutgoingPublish(msg, id), nil)
	c.mu.Unlock()

	_, err := c.wait(ctx, t)
	return err
}

// Subscribe subscribes to a topic filter and returns the QoS granted by the broker.
func (c *Client) Subscribe(ctx context.Context, filter string, qos QoS) (QoS, error) {
	if err := packet.CheckTopicFilter(filter); err != nil {
		return QoSFail, err
	}
	if !qos.Valid() {
		return QoSFail, packet.ErrInvalidQoS
	}

	c.mu.Lock()
	if err := c.expectStateLocked(StateReady); err != nil {
		c.mu.Unlock()
		return QoSFail, err
	}
	t := c.startFlowLocked(flow.OutgoingSubscribe(packet.Subscription{Topic: filter, QoS: qos}, c.ids.Next()), c.recordSubscription(filter))
	c.mu.Unlock()

	v, err := c.wait(ctx, t)
	if err != nil {
		return QoSFail, err
	}
	return v.(QoS), nil
}

// recordSubscription keeps granted subscriptions in the session store.
func (c *Client) recordSubscription(filter string) func(interface{}, error) {
	return func(v interface{}, err error) {
		if err != nil {
			return
		}
		if err := c.SessionStore.AddSubscription(filter, v.(QoS)); err != nil {
			c.logger().WithError(err).Error("unable to store subscription")
		}
	}
}

// Unsubscribe removes the subscription to filter.
func (c *Client) Unsubscribe(ctx context.Context, filter string) error {
	if err := packet.CheckTopicFilter(filter); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.expectStateLocked(StateReady); err != nil {
		c.mu.Unlock()
		return err
	}
	t := c.startFlowLocked(flow.OutgoingUnsubscribe(filter, c.ids.Next()), func(_ interface{}, err error) {
		if err != nil {
			return
		}
		if err := c.SessionStore.RemoveSubscription(filter); err != nil {
			c.logger().WithError(err).Error("unable to remove stored subscription")
		}
	})
	c.mu.Unlock()

	_, err := c.wait(ctx, t)
	return err
}

// Disconnect closes the connection and stops reconnecting. Unless force is
// set, DISCONNECT is sent first so the broker discards the will message.
func (c *Client) Disconnect(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stopped := c.stopReconnectLocked()
	if c.conn == nil {
		if stopped {
			return nil
		}
		return &IllegalStateError{Current: c.state, Requested: StateReady}
	}
	if !force && c.state == StateReady {
		c.startFlowLocked(flow.OutgoingDisconnect(), nil)
	}
	c.teardownLocked(ErrClientDisconnect, true)
	return nil
}

// Listen routes received messages matching pattern to h. Patterns are topic
// filters where a level may be ":name", which matches like '+' and is passed in Message.Params.
// It does not subscribe, see ListenSubscribe.
func (c *Client) Listen(pattern string, h Handler) (remove func()) {
	remove = c.router.Handle(pattern, h)
	c.logger().WithFields(log.Fields{"pattern": pattern, "listeners": c.router.Len()}).Debug("listener added")
	return remove
}

// ListenSubscribe registers h for pattern and subscribes to the matching filter.
// The listener is removed again when the subscription fails.
func (c *Client) ListenSubscribe(ctx context.Context, pattern string, qos QoS, h Handler) (remove func(), err error) {
	remove = c.Listen(pattern, h)
	if _, err = c.Subscribe(ctx, router.ToFilter(pattern), qos); err != nil {
		remove()
		return nil, err
	}
	return remove, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetKeepAlive changes the ping period used from now on. 0 stops pinging.
// It does not change the Keep Alive announced in CONNECT.
func (c *Client) SetKeepAlive(d time.Duration) {
	c.mu.Lock()
	c.keepAlive, c.keepAliveOK = d, true
	if c.state == StateReady {
		c.schedulePingLocked()
	}
	c.mu.Unlock()
}

// Close disconnects, stops event delivery and closes the session store.
// The client can not be used afterwards.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return ErrClosed
	}

	c.mu.Lock()
	c.stopReconnectLocked()
	if c.conn != nil {
		if c.state == StateReady {
			c.startFlowLocked(flow.OutgoingDisconnect(), nil)
		}
		c.teardownLocked(ErrClientDisconnect, true)
	}
	c.setStateLocked(StateFatal)
	c.mu.Unlock()

	c.events.Lock()
	atomic.StoreInt32(&c.killed, 1)
	c.events.NotifyDispatcher()
	c.events.Unlock()
	c.dispatchWG.Wait()

	if n := c.events.Len(); n > 0 {
		c.logger().WithField("events", n).Debug("dropping undelivered events")
	}
	c.events.Reset()

	if c.SessionStore != nil {
		return c.SessionStore.Close()
	}
	return nil
}
