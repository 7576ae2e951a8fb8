package mqttc

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/RoanBrand/mqttc/internal/model"
)

var (
	// ErrFlowCancelled fails operations whose flow was stopped before it completed.
	ErrFlowCancelled = errors.New("flow cancelled")
	// ErrDisconnected fails operations still in flight when the connection is torn down.
	ErrDisconnected = errors.New("disconnected")
	// ErrPingTimeout is the reason a keep alive ping is stopped when no PINGRESP arrived in time.
	ErrPingTimeout = errors.New("ping timeout")
	// ErrClientDisconnect is the reason given for a disconnect the caller asked for.
	ErrClientDisconnect = errors.New("disconnect requested by client")
	// ErrServerDisconnect is the reason given when the broker sent DISCONNECT.
	ErrServerDisconnect = errors.New("server sent DISCONNECT")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("client closed")
)

// UnexpectedPacketError is emitted as a warning for an inbound packet no flow accepted.
type UnexpectedPacketError struct {
	Type model.Type
}

func (e *UnexpectedPacketError) Error() string {
	return "unexpected " + e.Type.String() + " packet"
}

// IllegalStateError is returned when an operation or transition is not allowed in the current state.
type IllegalStateError struct {
	Current   State
	Requested State
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state %s, requires %s", e.Current, e.Requested)
}

// DisconnectedError fails flows that were active when the connection was torn down.
// It matches ErrDisconnected with errors.Is and unwraps to the reason.
type DisconnectedError struct {
	Reason error
}

func (e *DisconnectedError) Error() string {
	if e.Reason == nil {
		return ErrDisconnected.Error()
	}
	return ErrDisconnected.Error() + ": " + e.Reason.Error()
}

func (e *DisconnectedError) Is(target error) bool {
	return target == ErrDisconnected
}

func (e *DisconnectedError) Unwrap() error {
	return e.Reason
}
