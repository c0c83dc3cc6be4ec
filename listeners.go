package gofaye

import "sync"

type messageEvent int

const (
	handshakeResponse messageEvent = iota
	connectResponse
	subscribeResponse
	unsubscribeResponse
	publishResponse
	messageReceived
)

var messageEventNames = []string{
	"handshake-response",
	"connect-response",
	"subscribe-response",
	"unsubscribe-response",
	"publish-response",
	"message-received",
}

func (e messageEvent) String() string {
	return messageEventNames[e]
}

// Listeners holds the callbacks registered for each session event.
// Callbacks for one event run in registration order on the goroutine that
// raised it. An event without callbacks is a no-op.
type Listeners struct {
	lock           sync.RWMutex
	connected      []func()
	connectTimeout []func()
	disconnected   []func()
	errors         []func(ErrorEvent)
	messages       map[messageEvent][]func(Message)
}

func newListeners() *Listeners {
	return &Listeners{messages: make(map[messageEvent][]func(Message))}
}

// OnConnected registers fn to run when the transport reports it is
// connected.
func (l *Listeners) OnConnected(fn func()) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.connected = append(l.connected, fn)
}

// OnConnectTimeout registers fn to run when a connection attempt is not
// established in time.
func (l *Listeners) OnConnectTimeout(fn func()) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.connectTimeout = append(l.connectTimeout, fn)
}

// OnDisconnected registers fn to run when the session loses or drops its
// transport.
func (l *Listeners) OnDisconnected(fn func()) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.disconnected = append(l.disconnected, fn)
}

// OnError registers fn to receive warnings and transport faults.
func (l *Listeners) OnError(fn func(ErrorEvent)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.errors = append(l.errors, fn)
}

// OnHandshakeResponse registers fn to receive /meta/handshake replies.
func (l *Listeners) OnHandshakeResponse(fn func(Message)) {
	l.onMessage(handshakeResponse, fn)
}

// OnConnectResponse registers fn to receive /meta/connect replies.
func (l *Listeners) OnConnectResponse(fn func(Message)) {
	l.onMessage(connectResponse, fn)
}

// OnSubscribeResponse registers fn to receive /meta/subscribe replies.
func (l *Listeners) OnSubscribeResponse(fn func(Message)) {
	l.onMessage(subscribeResponse, fn)
}

// OnUnsubscribeResponse registers fn to receive /meta/unsubscribe replies.
func (l *Listeners) OnUnsubscribeResponse(fn func(Message)) {
	l.onMessage(unsubscribeResponse, fn)
}

// OnPublishResponse registers fn to receive publish acknowledgements.
func (l *Listeners) OnPublishResponse(fn func(Message)) {
	l.onMessage(publishResponse, fn)
}

// OnMessageReceived registers fn to receive every inbound message, after
// any channel specific callback has run for it.
func (l *Listeners) OnMessageReceived(fn func(Message)) {
	l.onMessage(messageReceived, fn)
}

func (l *Listeners) onMessage(e messageEvent, fn func(Message)) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.messages[e] = append(l.messages[e], fn)
}

func (l *Listeners) emitConnected() {
	for _, fn := range l.snapshot(&l.connected) {
		fn()
	}
}

func (l *Listeners) emitConnectTimeout() {
	for _, fn := range l.snapshot(&l.connectTimeout) {
		fn()
	}
}

func (l *Listeners) emitDisconnected() {
	for _, fn := range l.snapshot(&l.disconnected) {
		fn()
	}
}

func (l *Listeners) emitError(e ErrorEvent) {
	var fns []func(ErrorEvent)
	l.lock.RLock()
	fns = append(fns, l.errors...)
	l.lock.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (l *Listeners) emitMessage(e messageEvent, m Message) {
	var fns []func(Message)
	l.lock.RLock()
	fns = append(fns, l.messages[e]...)
	l.lock.RUnlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (l *Listeners) snapshot(fns *[]func()) []func() {
	var out []func()
	l.lock.RLock()
	defer l.lock.RUnlock()
	return append(out, *fns...)
}
