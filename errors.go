package gofaye

import (
	"fmt"
)

const (
	// ErrNotOpen is returned when an operation needs a live transport and
	// there is none
	ErrNotOpen = sentinel("transport not open")

	// ErrNotConnected is returned when an operation needs a live transport
	// and a completed handshake
	ErrNotConnected = sentinel("transport not open or bayeux session not initialized")

	// ErrNoSupportedConnectionTypes is returned by a handshake builder with
	// no connection types
	ErrNoSupportedConnectionTypes = sentinel("no supported connection types provided")

	// ErrNoVersion is returned by a handshake builder with no version
	ErrNoVersion = sentinel("no version specified")

	// ErrMissingClientID is returned when a request needs a clientId
	ErrMissingClientID = sentinel("missing clientID value")

	// ErrMissingConnectionType is returned by a connect builder with no
	// connection type
	ErrMissingConnectionType = sentinel("missing connectionType value")
)

type sentinel string

func (s sentinel) Error() string {
	return string(s)
}

// UnsupportedSchemeError is returned by New when the URI scheme maps to no
// transport
type UnsupportedSchemeError struct {
	Scheme string
}

func (e UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("uri scheme %q was not recognized", e.Scheme)
}

// ConnectionFailedError wraps a failure to open the transport
type ConnectionFailedError struct {
	Err error
}

func (e ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection failed (%s)", e.Err)
}

func (e ConnectionFailedError) Unwrap() error {
	return e.Err
}

// HandshakeFailedError wraps a failure to send the handshake
type HandshakeFailedError struct {
	Err error
}

func (e HandshakeFailedError) Error() string {
	return fmt.Sprintf("handshake failed (%s)", e.Err)
}

func (e HandshakeFailedError) Unwrap() error {
	return e.Err
}

// SubscriptionFailedError wraps a failure to send a subscribe
type SubscriptionFailedError struct {
	Channels []Channel
	Err      error
}

func (e SubscriptionFailedError) Error() string {
	return fmt.Sprintf("subscription failed (%s)", e.Err)
}

func (e SubscriptionFailedError) Unwrap() error {
	return e.Err
}

// UnsubscribeFailedError wraps a failure to send an unsubscribe
type UnsubscribeFailedError struct {
	Channels []Channel
	Err      error
}

func (e UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unsubscribe failed (%s)", e.Err)
}

func (e UnsubscribeFailedError) Unwrap() error {
	return e.Err
}

// PublishFailedError wraps a failure to send a publish
type PublishFailedError struct {
	Channel Channel
	Err     error
}

func (e PublishFailedError) Error() string {
	return fmt.Sprintf("publish to %s failed (%s)", e.Channel, e.Err)
}

func (e PublishFailedError) Unwrap() error {
	return e.Err
}

// DisconnectFailedError wraps a failure to send the disconnect
type DisconnectFailedError struct {
	Err error
}

func (e DisconnectFailedError) Error() string {
	msg := "unable to disconnect from Bayeux server"

	if e.Err == nil {
		return msg
	}

	return fmt.Sprintf("%s (%s)", msg, e.Err)
}

func (e DisconnectFailedError) Unwrap() error {
	return e.Err
}

// AlreadyRegisteredError is returned when an extension is added twice
type AlreadyRegisteredError struct {
	MessageExtender
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("extension %T already registered", e.MessageExtender)
}

// BadConnectionTypeError names a connection type the client does not know
type BadConnectionTypeError struct {
	ConnectionType string
}

func (e BadConnectionTypeError) Error() string {
	return fmt.Sprintf("unknown connection type %q", e.ConnectionType)
}

// BadConnectionVersionError names a version without a numeric major part
type BadConnectionVersionError struct {
	Version string
}

func (e BadConnectionVersionError) Error() string {
	return fmt.Sprintf("invalid bayeux version %q", e.Version)
}

// InvalidChannelError names a channel that cannot be used for the request
type InvalidChannelError struct {
	Channel
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("invalid channel %q", e.Channel)
}

// EmptySliceError names a list that must not be empty
type EmptySliceError string

func (e EmptySliceError) Error() string {
	return "no " + string(e) + " provided"
}

// ErrMessageUnparsable is returned by Message.ParseError
type ErrMessageUnparsable string

func (e ErrMessageUnparsable) Error() string {
	return "unparsable error field: " + string(e)
}

// BadStateError describes a transition the state machine refused
type BadStateError struct {
	CurrentState int32
	FromState    int32
	ToState      int32
	Message      string
}

func (e BadStateError) Error() string {
	return fmt.Sprintf("%s, (current: %s, from: %s, to: %s)", e.Message, stateName(e.CurrentState), stateName(e.FromState), stateName(e.ToState))
}

// BadHandshakeError is returned when trying to handshake without an open
// transport
type BadHandshakeError struct {
	*BadStateError
}

func newBadHandshake(current, from, to int32) *BadHandshakeError {
	return &BadHandshakeError{
		&BadStateError{
			Message:      "attempting to handshake but transport is not open",
			CurrentState: current,
			FromState:    from,
			ToState:      to,
		},
	}
}

// BadConnectionError is returned when a handshake acknowledgement arrives
// without a handshake in flight
type BadConnectionError struct {
	*BadStateError
}

func newBadConnection(current, from, to int32) *BadConnectionError {
	return &BadConnectionError{
		&BadStateError{
			Message:      "invalid state for successful handshake response event",
			CurrentState: current,
			FromState:    from,
			ToState:      to,
		},
	}
}

// UnknownEventTypeError names an event the state machine cannot apply
type UnknownEventTypeError struct {
	Event
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type (%q)", string(e.Event))
}

// ErrorLevel grades the faults reported through the Error event
type ErrorLevel int

const (
	// Warning marks malformed but processable data
	Warning ErrorLevel = iota
	// Severe marks a transport failure the session may recover from
	Severe
	// Fatal marks a failure after which the session has been reset
	Fatal
)

func (l ErrorLevel) String() string {
	switch l {
	case Warning:
		return "warning"
	case Severe:
		return "severe"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrorEvent is what the Error event carries. Data holds the structured
// description (at least "type" and "error"); Err holds the underlying
// fault when there is one.
type ErrorEvent struct {
	Level ErrorLevel
	Data  map[string]interface{}
	Err   error
}

func (e ErrorEvent) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Level, e.Data["type"], e.Err)
	}
	return fmt.Sprintf("%s: %v (%v)", e.Level, e.Data["type"], e.Data["error"])
}

func (e ErrorEvent) Unwrap() error {
	return e.Err
}
