package mqttc

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttc/internal/queue"
)

type eventHandler struct {
	fn interface{}
}

// observers is the registry of event handlers, called in registration order.
type observers struct {
	sync.Mutex
	handlers map[queue.Kind][]*eventHandler
}

func (o *observers) add(k queue.Kind, fn interface{}) (remove func()) {
	h := &eventHandler{fn: fn}

	o.Lock()
	if o.handlers == nil {
		o.handlers = make(map[queue.Kind][]*eventHandler, 5)
	}
	o.handlers[k] = append(o.handlers[k], h)
	o.Unlock()

	return func() {
		o.Lock()
		defer o.Unlock()
		hs := o.handlers[k]
		for i, eh := range hs {
			if eh == h {
				o.handlers[k] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) get(k queue.Kind) []*eventHandler {
	o.Lock()
	defer o.Unlock()
	return o.handlers[k]
}

// OnConnect registers fn to be called every time a connection is accepted by the broker.
func (c *Client) OnConnect(fn func(sessionPresent bool)) (remove func()) {
	return c.observers.add(queue.Connect, fn)
}

// OnDisconnect registers fn to be called every time the connection is torn down.
// forced is true when the caller asked for it.
func (c *Client) OnDisconnect(fn func(reason error, forced bool)) (remove func()) {
	return c.observers.add(queue.Disconnect, fn)
}

// OnMessage registers fn to be called for every message received, whether a listener matched it or not.
func (c *Client) OnMessage(fn func(msg Message)) (remove func()) {
	return c.observers.add(queue.Message, fn)
}

// OnWarning registers fn for problems that do not affect the connection,
// like unexpected packets or failed pings.
func (c *Client) OnWarning(fn func(err error)) (remove func()) {
	return c.observers.add(queue.Warning, fn)
}

// OnError registers fn for errors that tear down the connection.
func (c *Client) OnError(fn func(err error)) (remove func()) {
	return c.observers.add(queue.Error, fn)
}

func (c *Client) emitConnect(sessionPresent bool) {
	i := queue.GetItem(queue.Connect)
	i.SessionPresent = sessionPresent
	c.events.Add(i)
}

func (c *Client) emitDisconnect(reason error, forced bool) {
	i := queue.GetItem(queue.Disconnect)
	i.Err, i.Forced = reason, forced
	c.events.Add(i)
}

func (c *Client) emitMessage(msg Message) {
	i := queue.GetItem(queue.Message)
	i.Msg = msg
	c.events.Add(i)
}

func (c *Client) emitWarning(err error) {
	c.logger().WithError(err).Warn("warning")
	i := queue.GetItem(queue.Warning)
	i.Err = err
	c.events.Add(i)
}

func (c *Client) emitError(err error) {
	c.logger().WithError(err).Error("error")
	i := queue.GetItem(queue.Error)
	i.Err = err
	c.events.Add(i)
}

// dispatch runs on the dispatcher goroutine, never under c.mu.
func (c *Client) dispatch(i *queue.Item) error {
	hs := c.observers.get(i.Kind)

	switch i.Kind {
	case queue.Connect:
		for _, h := range hs {
			h.fn.(func(bool))(i.SessionPresent)
		}
	case queue.Disconnect:
		for _, h := range hs {
			h.fn.(func(error, bool))(i.Err, i.Forced)
		}
	case queue.Message:
		n := c.router.Dispatch(i.Msg)
		for _, h := range hs {
			h.fn.(func(Message))(i.Msg)
		}
		if n == 0 && len(hs) == 0 {
			c.logger().WithField("topic", i.Msg.Topic).Debug("no listener for message")
		}
	case queue.Warning, queue.Error:
		for _, h := range hs {
			h.fn.(func(error))(i.Err)
		}
	}
	return nil
}

func (c *Client) logger() *log.Entry {
	return log.WithFields(log.Fields{"clientId": c.Config.Connect.ClientID})
}
