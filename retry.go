package mqttc

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// reconnector is the running reconnect loop of a client.
type reconnector struct {
	cancel context.CancelFunc
}

// startReconnectLocked starts the reconnect loop if the strategy wants to retry after reason. Requires c.mu.
func (c *Client) startReconnectLocked(reason error) {
	if c.Strategy == nil || c.reconnector != nil || atomic.LoadInt32(&c.closed) == 1 {
		return
	}
	if !c.Strategy.ShouldRetry(reason) {
		c.logger().WithError(reason).Info("not reconnecting")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &reconnector{cancel: cancel}
	c.reconnector = r
	go c.reconnectLoop(ctx, r)
}

// stopReconnectLocked cancels the reconnect loop and reports whether one was running. Requires c.mu.
func (c *Client) stopReconnectLocked() bool {
	r := c.reconnector
	if r == nil {
		return false
	}
	c.reconnector = nil
	r.cancel()
	return true
}

func (c *Client) reconnectLoop(ctx context.Context, r *reconnector) {
	defer func() {
		c.mu.Lock()
		if c.reconnector == r {
			c.reconnector = nil
		}
		c.mu.Unlock()
		r.cancel()
	}()

	for attempt := 1; ; attempt++ {
		if err := c.Strategy.Wait(ctx); err != nil {
			return
		}

		c.mu.Lock()
		state := c.state
		c.mu.Unlock()
		if state != StateCreated { // connected by the caller meanwhile
			return
		}

		c.logger().WithField("attempt", attempt).Info("reconnecting")
		sessionPresent, err := c.connect(ctx)
		if err == nil {
			c.Strategy.Reset()
			c.logger().WithFields(log.Fields{"attempt": attempt, "sessionPresent": sessionPresent}).Info("reconnected")
			return
		}
		if ctx.Err() != nil {
			return
		}

		c.logger().WithError(err).WithField("attempt", attempt).Warn("reconnect failed")
		if !c.Strategy.ShouldRetry(err) {
			c.emitError(errors.Wrap(err, "giving up reconnecting"))
			return
		}
	}
}
