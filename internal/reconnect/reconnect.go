// Package reconnect decides whether and when a lost connection is re-established.
package reconnect

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/packet"
)

// Strategy is consulted after every connection loss that the caller did not ask for.
type Strategy interface {
	// ShouldRetry reports whether to try again after a loss caused by reason.
	ShouldRetry(reason error) bool
	// Wait blocks until the next attempt may start.
	Wait(ctx context.Context) error
	// Reset is called after a successful reconnect.
	Reset()
}

// Default retries up to MaxAttempts times with exponential backoff.
// A refused CONNECT is only retried for IdentifierRejected and ServerUnavailable.
type Default struct {
	MaxAttempts int           // default 60
	Interval    time.Duration // delay before the first attempt, default 1s
	Multiplier  float64       // growth of the delay per attempt, below 1 means constant
	MaxInterval time.Duration // 0 means no limit
	Jitter      bool

	mu       sync.Mutex
	attempts int
	rng      *rand.Rand
}

func NewDefault() *Default {
	return &Default{MaxAttempts: 60, Interval: time.Second}
}

func (d *Default) ShouldRetry(reason error) bool {
	var ce *packet.ConnectError
	if errors.As(reason, &ce) {
		switch ce.ReturnCode {
		case packet.IdentifierRejected, packet.ServerUnavailable:
		default:
			return false
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	max := d.MaxAttempts
	if max == 0 {
		max = 60
	}
	return d.attempts < max
}

func (d *Default) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.attempts++
	delay := d.delay(d.attempts)
	d.mu.Unlock()

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Default) Reset() {
	d.mu.Lock()
	d.attempts = 0
	d.mu.Unlock()
}

// delay returns the wait before attempt n (1-based).
func (d *Default) delay(n int) time.Duration {
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if n <= 1 && !d.Jitter {
		return interval
	}

	mul := d.Multiplier
	if mul < 1.0 {
		mul = 1.0
	}
	delay := float64(interval) * math.Pow(mul, float64(n-1))
	if d.MaxInterval > 0 && delay > float64(d.MaxInterval) {
		delay = float64(d.MaxInterval)
	}
	if d.Jitter {
		if d.rng == nil {
			d.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		delay *= 0.5 + d.rng.Float64()
	}
	return time.Duration(delay)
}
