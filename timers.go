package mqttc

import (
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/flow"
)

const (
	pingMargin    = 500 * time.Millisecond
	minPingPeriod = time.Second
)

func pingPeriod(keepAlive time.Duration) time.Duration {
	if p := keepAlive - pingMargin; p > minPingPeriod {
		return p
	}
	return minPingPeriod
}

// schedulePingLocked (re)starts the keep alive timer. Requires c.mu.
func (c *Client) schedulePingLocked() {
	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
	if c.keepAlive <= 0 {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(pingPeriod(c.keepAlive), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pingTimer != t || c.state != StateReady {
			return
		}
		c.pingLocked()
		c.schedulePingLocked()
	})
	c.pingTimer = t
}

// pingLocked stops the previous ping if it is still unanswered and sends a new one. Requires c.mu.
func (c *Client) pingLocked() {
	c.stopFlowLocked(c.pingFlow, ErrPingTimeout)

	tok := c.startFlowLocked(flow.OutgoingPing(), func(_ interface{}, err error) {
		if err != nil && !errors.Is(err, ErrDisconnected) {
			c.emitWarning(errors.Wrap(err, "ping"))
		}
	})
	c.pingFlow = tok.id
}

// scheduleConnectResendLocked sends CONNECT on conn again every connect delay
// until the broker answers. Requires c.mu.
func (c *Client) scheduleConnectResendLocked(conn io.ReadWriteCloser) {
	d := c.ConnectDelay()
	if d <= 0 {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.connTimer != t || c.conn != conn || c.state != StateConnecting {
			return
		}
		for _, af := range c.flows {
			if af.id != c.connectFlow {
				continue
			}
			c.logger().Debug("no CONNACK yet, resending CONNECT")
			if err := c.writeLocked(af.flow.Start()); err != nil {
				af.token.Fail(err)
				return
			}
			c.scheduleConnectResendLocked(conn)
			return
		}
	})
	c.connTimer = t
}
