package mqttc

import (
	"context"
	"sync"
)

// Token is the pending result of an operation started by the engine.
type Token struct {
	id   uint64 // active flow id, 0 when never registered
	done chan struct{}
	once sync.Once

	value interface{}
	err   error

	// onResolve runs once on the resolving goroutine, before Done is closed.
	onResolve func(v interface{}, err error)
}

func newToken(onResolve func(v interface{}, err error)) *Token {
	return &Token{done: make(chan struct{}), onResolve: onResolve}
}

func (t *Token) Succeed(v interface{}) {
	t.resolve(v, nil)
}

func (t *Token) Fail(err error) {
	t.resolve(nil, err)
}

func (t *Token) resolve(v interface{}, err error) {
	t.once.Do(func() {
		t.value, t.err = v, err
		if t.onResolve != nil {
			t.onResolve(v, err)
		}
		close(t.done)
	})
}

// Done is closed once the token resolved.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

func (t *Token) resolved() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the token resolves or ctx ends. It does not stop the operation.
func (t *Token) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Value returns the result of a successful operation. Only valid after Done.
func (t *Token) Value() interface{} {
	select {
	case <-t.done:
		return t.value
	default:
		return nil
	}
}

// Err returns why the operation failed. Only valid after Done.
func (t *Token) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
