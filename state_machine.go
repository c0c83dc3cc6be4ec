package gofaye

import (
	"sync/atomic"
)

// StateRepresentation is the printable form of a session state
type StateRepresentation string

const (
	unconnected int32 = iota
	connecting
	handshaking
	connected
)

const (
	unconnectedRepr StateRepresentation = "UNCONNECTED"
	connectingRepr  StateRepresentation = "CONNECTING"
	handshakingRepr StateRepresentation = "HANDSHAKING"
	connectedRepr   StateRepresentation = "CONNECTED"
)

var stateReprs = [...]StateRepresentation{
	unconnected: unconnectedRepr,
	connecting:  connectingRepr,
	handshaking: handshakingRepr,
	connected:   connectedRepr,
}

func stateName(state int32) string {
	if state < 0 || int(state) >= len(stateReprs) {
		return "unknown"
	}
	return string(stateReprs[state])
}

// Event drives a ConnectionStateMachine from one state to the next
type Event string

const (
	transportOpening      Event = "transport opening"
	handshakeSent         Event = "handshake request sent"
	successfullyConnected Event = "handshake acknowledged"
	transportClosed       Event = "transport closed"
)

// ConnectionStateMachine tracks how far the Bayeux session has progressed
// on the current transport: unconnected, connecting (transport created),
// handshaking (handshake sent) and connected (handshake acknowledged).
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type ConnectionStateMachine struct {
	state atomic.Int32
}

// NewConnectionStateMachine returns a machine in the unconnected state
func NewConnectionStateMachine() *ConnectionStateMachine {
	return &ConnectionStateMachine{}
}

// IsConnected reports whether the handshake was acknowledged on the
// current transport
func (csm *ConnectionStateMachine) IsConnected() bool {
	return csm.state.Load() == connected
}

// CurrentState returns the printable form of the current state
func (csm *ConnectionStateMachine) CurrentState() StateRepresentation {
	return StateRepresentation(stateName(csm.state.Load()))
}

// ProcessEvent applies e, rejecting transitions that make no sense from the
// current state
func (csm *ConnectionStateMachine) ProcessEvent(e Event) error {
	switch e {
	case transportOpening:
		csm.state.Store(connecting)
	case transportClosed:
		csm.state.Store(unconnected)
	case handshakeSent:
		// a live transport may handshake again, e.g. on server advice
		for {
			current := csm.state.Load()
			if current == unconnected {
				return newBadHandshake(current, connecting, handshaking)
			}
			if csm.state.CompareAndSwap(current, handshaking) {
				return nil
			}
		}
	case successfullyConnected:
		if !csm.state.CompareAndSwap(handshaking, connected) {
			return newBadConnection(csm.state.Load(), handshaking, connected)
		}
	default:
		return UnknownEventTypeError{e}
	}
	return nil
}
