package mqttc

// State of the connection to the broker.
type State int8

const (
	StateFatal State = iota - 1
	StateCreated
	StateConnecting
	StateReady
	StateDisconnected
)

var stateNames = map[State]string{
	StateFatal:        "Fatal",
	StateCreated:      "Created",
	StateConnecting:   "Connecting",
	StateReady:        "Ready",
	StateDisconnected: "Disconnected",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}

// canMoveTo reports whether s -> to is allowed. States only move forward,
// except for the reset back to Created. Everything may become Fatal.
func (s State) canMoveTo(to State) bool {
	switch to {
	case StateFatal:
		return s != StateFatal
	case StateCreated:
		return s == StateCreated || s == StateDisconnected
	case StateConnecting:
		return s == StateCreated
	case StateReady:
		return s == StateConnecting
	case StateDisconnected:
		return s == StateConnecting || s == StateReady
	}
	return false
}

// setStateLocked moves the client to state to. Requires c.mu.
func (c *Client) setStateLocked(to State) error {
	if !c.state.canMoveTo(to) {
		return &IllegalStateError{Current: c.state, Requested: to}
	}
	c.state = to
	return nil
}

// expectStateLocked returns an IllegalStateError unless the client is in state s. Requires c.mu.
func (c *Client) expectStateLocked(s State) error {
	if c.state != s {
		return &IllegalStateError{Current: c.state, Requested: s}
	}
	return nil
}
