package gofaye

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	sjson "github.com/segmentio/encoding/json"
)

// Session is a Bayeux client session bound to one kind of transport. It
// owns the client identity, the acknowledged subscriptions and the live
// transport, and reports everything the server says through the embedded
// Listeners.
//
// Operations never wait for a server reply: replies arrive later as events.
type Session struct {
	*Listeners

	lock     sync.Mutex
	uri      string
	state    *sessionState
	clientID string
	ext      json.RawMessage
	timeout  time.Duration
	exts     []MessageExtender

	policy       transportPolicy
	dial         func(s *Session, uri, attempt string) (link, error)
	socketDialer SocketDialer
	pollerDialer PollerDialer

	subs    *subscriptionSet
	csm     *ConnectionStateMachine
	logger  Logger
	metrics *metrics
}

// sessionState is everything tied to a single connection attempt. It is
// replaced wholesale by Connect.
type sessionState struct {
	attempt  string
	link     link
	watchdog *time.Timer
	rearm    *time.Timer
	timedOut bool
}

func (st *sessionState) stopTimers() {
	if st.watchdog != nil {
		st.watchdog.Stop()
	}
	if st.rearm != nil {
		st.rearm.Stop()
	}
}

// Connect establishes the transport for uri, closing any previous one
// first. Replacing a transport clears the client identity and the
// subscriptions, and raises Disconnected if the old one had completed a
// handshake. An empty uri reconnects to the last one used. It does not block:
// the socket transport handshakes once the socket opens, the polling
// transport handshakes right away.
func (s *Session) Connect(uri string) error {
	logger := s.logger.WithField("at", "connect")
	if uri == "" {
		uri = s.URI()
	}
	policy, _, err := transportFor(uri)
	if err != nil {
		return ConnectionFailedError{err}
	}
	if policy.connectionType != s.policy.connectionType {
		return ConnectionFailedError{UnsupportedSchemeError{schemeOf(uri)}}
	}

	handshook := s.ClientID() != ""
	if old := s.detach(""); old != nil {
		logger.WithField("attempt", old.attempt).Debug("closing previous transport")
		s.release(old)
		s.resetSubscriptions()
		if handshook {
			s.emitDisconnected()
		}
	}

	attempt := uuid.NewString()
	logger = logger.WithField("attempt", attempt)
	l, err := s.dial(s, uri, attempt)
	if err != nil {
		logger.WithError(err).Warn("unable to create transport")
		return ConnectionFailedError{err}
	}

	st := &sessionState{attempt: attempt, link: l}
	s.lock.Lock()
	s.uri = uri
	s.state = st
	if s.policy.watchConnectTimeout && s.timeout > 0 {
		st.watchdog = time.AfterFunc(s.timeout, func() {
			s.watchdogFired(attempt)
		})
	}
	s.lock.Unlock()

	_ = s.csm.ProcessEvent(transportOpening)
	s.metrics.incConnectAttempt(s.policy.connectionType)
	logger.Debug("opening transport")
	l.open()

	if s.policy.handshakeOnConnect {
		if err := s.Handshake(); err != nil {
			return ConnectionFailedError{err}
		}
	}
	return nil
}

// Handshake sends /meta/handshake on the open transport
func (s *Session) Handshake() error {
	logger := s.logger.WithField("at", "handshake")
	st := s.current()
	if st == nil || !st.link.live() {
		logger.Debug("transport not open")
		return HandshakeFailedError{ErrNotOpen}
	}

	builder := NewHandshakeRequestBuilder()
	if err := builder.AddVersion("1.0"); err != nil {
		return HandshakeFailedError{err}
	}
	if err := builder.AddSupportedConnectionType(s.policy.connectionType); err != nil {
		return HandshakeFailedError{err}
	}
	ms, err := builder.Build()
	if err != nil {
		return HandshakeFailedError{err}
	}
	if err := s.csm.ProcessEvent(handshakeSent); err != nil {
		logger.WithError(err).Debug("invalid action for current state")
		return HandshakeFailedError{err}
	}
	if err := s.send(st, ms...); err != nil {
		return HandshakeFailedError{err}
	}
	return nil
}

// ConnectRequest sends /meta/connect. It requires a completed handshake.
func (s *Session) ConnectRequest() error {
	logger := s.logger.WithField("at", "connect-request")
	st, clientID, err := s.connectedState()
	if err != nil {
		logger.Debug("session not connected")
		return ConnectionFailedError{err}
	}

	builder := NewConnectRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddConnectionType(s.policy.connectionType); err != nil {
		return ConnectionFailedError{err}
	}
	ms, err := builder.Build()
	if err != nil {
		return ConnectionFailedError{err}
	}
	if err := s.send(st, ms...); err != nil {
		return ConnectionFailedError{err}
	}
	return nil
}

// Subscribe asks the server to deliver messages published to channel,
// which may end in a wildcard. The subscription only counts once the
// server acknowledges it.
func (s *Session) Subscribe(channel string) error {
	c := Channel(channel)
	st, clientID, err := s.connectedState()
	if err != nil {
		s.logger.WithField("at", "subscribe").Debug("session not connected")
		return SubscriptionFailedError{[]Channel{c}, err}
	}

	builder := NewSubscribeRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddSubscription(c); err != nil {
		return SubscriptionFailedError{[]Channel{c}, err}
	}
	ms, err := builder.Build()
	if err != nil {
		return SubscriptionFailedError{[]Channel{c}, err}
	}
	if err := s.send(st, ms...); err != nil {
		return SubscriptionFailedError{[]Channel{c}, err}
	}
	return nil
}

// Unsubscribe asks the server to stop delivering channel. The local
// subscription is dropped when the server answers, whatever the answer.
func (s *Session) Unsubscribe(channel string) error {
	c := Channel(channel)
	st, clientID, err := s.connectedState()
	if err != nil {
		s.logger.WithField("at", "unsubscribe").Debug("session not connected")
		return UnsubscribeFailedError{[]Channel{c}, err}
	}

	builder := NewUnsubscribeRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddSubscription(c); err != nil {
		return UnsubscribeFailedError{[]Channel{c}, err}
	}
	ms, err := builder.Build()
	if err != nil {
		return UnsubscribeFailedError{[]Channel{c}, err}
	}
	if err := s.send(st, ms...); err != nil {
		return UnsubscribeFailedError{[]Channel{c}, err}
	}
	return nil
}

// Publish sends data to channel. data is encoded as JSON unless it is
// already a json.RawMessage.
func (s *Session) Publish(channel string, data interface{}) error {
	c := Channel(channel)
	st, clientID, err := s.connectedState()
	if err != nil {
		s.logger.WithField("at", "publish").Debug("session not connected")
		return PublishFailedError{c, err}
	}

	payload, err := encodeJSON(data)
	if err != nil {
		return PublishFailedError{c, err}
	}
	builder := NewPublishRequestBuilder()
	builder.AddClientID(clientID)
	builder.AddData(payload)
	if err := builder.AddChannel(c); err != nil {
		return PublishFailedError{c, err}
	}
	ms, err := builder.Build()
	if err != nil {
		return PublishFailedError{c, err}
	}
	if err := s.send(st, ms...); err != nil {
		return PublishFailedError{c, err}
	}
	return nil
}

// Disconnect sends /meta/disconnect when the session is connected, closes
// the transport and raises Disconnected. The client identity and the
// subscriptions are cleared.
func (s *Session) Disconnect() error {
	logger := s.logger.WithField("at", "disconnect")
	st, clientID, connErr := s.connectedState()
	if connErr == nil {
		s.sendDisconnect(st, clientID)
	}
	old := s.detach("")
	if old == nil {
		logger.Debug("transport not open")
		return DisconnectFailedError{ErrNotOpen}
	}
	s.release(old)
	s.resetSubscriptions()
	logger.WithField("attempt", old.attempt).Debug("disconnected")
	s.emitDisconnected()
	return nil
}

// Dispose tears the session down: it disconnects if a transport is open
// and resets the identity and subscriptions. It is safe to call more than
// once. Registered extensions are kept.
func (s *Session) Dispose() {
	st, clientID, connErr := s.connectedState()
	if connErr == nil {
		s.sendDisconnect(st, clientID)
	}
	old := s.detach("")
	s.resetSubscriptions()
	if old == nil {
		return
	}
	s.release(old)
	s.logger.WithField("at", "dispose").WithField("attempt", old.attempt).Debug("disposed")
	s.emitDisconnected()
}

// IsSubscribed reports whether channel matches an acknowledged
// subscription
func (s *Session) IsSubscribed(channel string) bool {
	return s.subs.Matches(Channel(channel))
}

// Subscriptions returns the acknowledged subscriptions in the order the
// server acknowledged them
func (s *Session) Subscriptions() []Channel {
	return s.subs.Snapshot()
}

// ClientID returns the identifier assigned by the last successful
// handshake, or "" when there is none
func (s *Session) ClientID() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.clientID
}

// MessageExt returns a copy of the extension payload attached to outgoing
// messages
func (s *Session) MessageExt() json.RawMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	return copyRaw(s.ext)
}

// SetMessageExt replaces the extension payload. It is read when each
// message is sent, so it applies to messages sent after the call. nil
// removes it.
func (s *Session) SetMessageExt(ext interface{}) error {
	encoded, err := encodeJSON(ext)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ext = encoded
	return nil
}

// Timeout is how long a socket connection attempt may take before
// ConnectTimeout is raised
func (s *Session) Timeout() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.timeout
}

// SetTimeout changes the timeout for the next Connect
func (s *Session) SetTimeout(d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.timeout = d
}

// Opened reports whether a transport exists and is live on the wire
func (s *Session) Opened() bool {
	st := s.current()
	return st != nil && st.link.live()
}

// IsConnected reports whether the transport is open and the handshake was
// acknowledged
func (s *Session) IsConnected() bool {
	_, _, err := s.connectedState()
	return err == nil
}

// State describes the session state: UNCONNECTED, CONNECTING, HANDSHAKING
// or CONNECTED
func (s *Session) State() StateRepresentation {
	return s.csm.CurrentState()
}

// URI is the address of the last Connect
func (s *Session) URI() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.uri
}

// ConnectionType is the Bayeux connection type of the session's transport
func (s *Session) ConnectionType() string {
	return s.policy.connectionType
}

// UseExtension adds the provided MessageExtender to the list of known
// extensions
func (s *Session) UseExtension(ext MessageExtender) error {
	s.lock.Lock()
	for _, registered := range s.exts {
		if ext == registered {
			s.lock.Unlock()
			return AlreadyRegisteredError{ext}
		}
	}
	s.exts = append(s.exts, ext)
	s.lock.Unlock()

	ext.Registered(fmt.Sprintf("%T", ext), s)
	return nil
}

// RemoveExtension unregisters ext. It reports whether ext was registered.
func (s *Session) RemoveExtension(ext MessageExtender) bool {
	s.lock.Lock()
	found := false
	for i, registered := range s.exts {
		if ext == registered {
			s.exts = append(s.exts[:i], s.exts[i+1:]...)
			found = true
			break
		}
	}
	s.lock.Unlock()

	if found {
		ext.Unregistered()
	}
	return found
}

func (s *Session) current() *sessionState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

func (s *Session) isCurrent(attempt string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state != nil && s.state.attempt == attempt
}

func (s *Session) connectedState() (*sessionState, string, error) {
	s.lock.Lock()
	st, clientID := s.state, s.clientID
	s.lock.Unlock()
	if st == nil || !st.link.live() || clientID == "" || !s.csm.IsConnected() {
		return nil, "", ErrNotConnected
	}
	return st, clientID, nil
}

// detach removes the live attempt from the session and clears the client
// identity. An empty attempt matches whichever attempt is live.
func (s *Session) detach(attempt string) *sessionState {
	s.lock.Lock()
	defer s.lock.Unlock()
	st := s.state
	if st == nil || (attempt != "" && st.attempt != attempt) {
		return nil
	}
	st.stopTimers()
	s.state = nil
	s.clientID = ""
	return st
}

func (s *Session) release(st *sessionState) {
	if err := st.link.close(); err != nil {
		s.logger.WithField("at", "release").WithField("attempt", st.attempt).WithError(err).Debug("error closing transport")
	}
	_ = s.csm.ProcessEvent(transportClosed)
}

func (s *Session) resetSubscriptions() {
	if n := s.subs.Reset(); n > 0 {
		s.metrics.addSubscriptions(-n)
	}
}

func (s *Session) sendDisconnect(st *sessionState, clientID string) {
	builder := NewDisconnectRequestBuilder()
	builder.AddClientID(clientID)
	ms, err := builder.Build()
	if err != nil {
		return
	}
	if err := s.send(st, ms...); err != nil {
		s.logger.WithField("at", "disconnect").WithError(err).Debug("unable to send disconnect")
	}
}

// send attaches the current MessageExt, runs the outgoing extensions and
// hands each message to the transport
func (s *Session) send(st *sessionState, ms ...Message) error {
	s.lock.Lock()
	ext := copyRaw(s.ext)
	exts := append([]MessageExtender(nil), s.exts...)
	s.lock.Unlock()

	for i := range ms {
		m := ms[i]
		if m.Channel != MetaDisconnect && len(ext) > 0 {
			m.Ext = copyRaw(ext)
		}
		for _, e := range exts {
			e.Outgoing(&m)
		}
		s.logger.WithField("at", "send").WithField("attempt", st.attempt).WithField("channel", string(m.Channel)).Debug("sending message")
		if err := st.link.send(m); err != nil {
			return err
		}
		s.metrics.incSent(m.Channel)
	}
	return nil
}

// connectExt is the ext of the /meta/connect requests a poller sends on
// its own
func (s *Session) connectExt() json.RawMessage {
	s.lock.Lock()
	m := Message{Channel: MetaConnect, ClientID: s.clientID, Ext: copyRaw(s.ext)}
	exts := append([]MessageExtender(nil), s.exts...)
	s.lock.Unlock()
	for _, e := range exts {
		e.Outgoing(&m)
	}
	return m.Ext
}

// watchdogFired raises ConnectTimeout when the attempt it was started for
// is still live and has not completed its handshake
func (s *Session) watchdogFired(attempt string) {
	s.lock.Lock()
	st := s.state
	if st == nil || st.attempt != attempt || st.timedOut {
		s.lock.Unlock()
		return
	}
	established := st.link.live() && s.clientID != "" && s.csm.IsConnected()
	if !established {
		st.timedOut = true
	}
	s.lock.Unlock()
	if established {
		return
	}

	s.logger.WithField("at", "watchdog").WithField("attempt", attempt).Warn("connection not established in time")
	s.metrics.incConnectTimeout()
	s.emitConnectTimeout()
}

// transportLost handles a transport that went away on its own
func (s *Session) transportLost(attempt string) {
	st := s.detach(attempt)
	if st == nil {
		return
	}
	s.release(st)
	s.resetSubscriptions()
	s.logger.WithField("at", "transport-lost").WithField("attempt", attempt).Info("transport closed")
	s.emitDisconnected()
}

func (s *Session) transportError(attempt string, err error) {
	if !s.isCurrent(attempt) {
		return
	}
	s.logger.WithField("at", "transport-error").WithField("attempt", attempt).WithError(err).Warn("transport error")
	s.raiseError(ErrorEvent{
		Level: Severe,
		Data:  map[string]interface{}{"type": "transport", "error": err.Error()},
		Err:   err,
	})
}

func (s *Session) raiseError(e ErrorEvent) {
	s.metrics.incError(e.Level)
	s.emitError(e)
}

func copyRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func encodeJSON(v interface{}) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return copyRaw(t), nil
	}
	return sjson.Marshal(v)
}

func encodeAdvice(a *Advice) json.RawMessage {
	if a == nil {
		return nil
	}
	encoded, err := sjson.Marshal(a)
	if err != nil {
		return nil
	}
	return encoded
}
