package gofaye

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeSocket struct {
	mu       sync.Mutex
	handlers SocketHandlers
	state    SocketState
	frames   []string
	opened   int
	closed   int
}

func (f *fakeSocket) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	f.state = SocketConnecting
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.state = SocketClosed
	return nil
}

func (f *fakeSocket) Send(frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != SocketOpen {
		return errors.New("fake socket not open")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSocket) State() SocketState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// open simulates the socket finishing its dial
func (f *fakeSocket) open() {
	f.mu.Lock()
	f.state = SocketOpen
	f.mu.Unlock()
	f.handlers.Opened()
}

// drop simulates the server going away
func (f *fakeSocket) drop() {
	f.mu.Lock()
	f.state = SocketClosed
	f.mu.Unlock()
	f.handlers.Closed()
}

func (f *fakeSocket) deliver(raw string) {
	f.handlers.MessageReceived(raw)
}

func (f *fakeSocket) sent(t *testing.T) []Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var ms []Message
	for _, frame := range f.frames {
		var batch []Message
		if err := json.Unmarshal([]byte(frame), &batch); err != nil {
			t.Fatalf("unparsable frame %q: %v", frame, err)
		}
		ms = append(ms, batch...)
	}
	return ms
}

func (f *fakeSocket) sentOn(t *testing.T, channel Channel) []Message {
	t.Helper()
	var ms []Message
	for _, m := range f.sent(t) {
		if m.Channel == channel {
			ms = append(ms, m)
		}
	}
	return ms
}

type socketFactory struct {
	mu      sync.Mutex
	sockets []*fakeSocket
}

func (sf *socketFactory) dial(uri string, h SocketHandlers) (Socket, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	socket := &fakeSocket{handlers: h, state: SocketClosed}
	sf.sockets = append(sf.sockets, socket)
	return socket, nil
}

func (sf *socketFactory) last() *fakeSocket {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.sockets[len(sf.sockets)-1]
}

type pollerCall struct {
	name    string
	channel string
	ext     json.RawMessage
	data    json.RawMessage
}

type fakePoller struct {
	mu                 sync.Mutex
	handlers           PollerHandlers
	ext                func() json.RawMessage
	calls              []pollerCall
	timeout            time.Duration
	longPollingTimeout time.Duration
	disposed           bool
	connectErr         error
}

func (f *fakePoller) record(c pollerCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return errors.New("fake poller disposed")
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakePoller) Handshake(connectionType string, ext, advice json.RawMessage, async bool) error {
	return f.record(pollerCall{name: "handshake", channel: connectionType, ext: ext})
}

func (f *fakePoller) Connect() error {
	f.mu.Lock()
	err := f.connectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.record(pollerCall{name: "connect", ext: f.ext()})
}

func (f *fakePoller) Disconnect() error {
	return f.record(pollerCall{name: "disconnect"})
}

func (f *fakePoller) Subscribe(ext json.RawMessage, channel string, async bool) error {
	return f.record(pollerCall{name: "subscribe", channel: channel, ext: ext})
}

func (f *fakePoller) Unsubscribe(ext json.RawMessage, channel string, async bool) error {
	return f.record(pollerCall{name: "unsubscribe", channel: channel, ext: ext})
}

func (f *fakePoller) Publish(data, ext json.RawMessage, channel string, advice json.RawMessage, async bool) error {
	return f.record(pollerCall{name: "publish", channel: channel, ext: ext, data: data})
}

func (f *fakePoller) StartLongPolling() {
	_ = f.record(pollerCall{name: "start-long-polling"})
}

func (f *fakePoller) SetTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
}

func (f *fakePoller) SetLongPollingTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.longPollingTimeout = d
}

func (f *fakePoller) Dispose() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = true
	return nil
}

func (f *fakePoller) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.name
	}
	return names
}

func (f *fakePoller) lastCall() pollerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type pollerFactory struct {
	mu      sync.Mutex
	pollers []*fakePoller
}

func (pf *pollerFactory) dial(uri string, ext func() json.RawMessage, h PollerHandlers) (LongPoller, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	poller := &fakePoller{handlers: h, ext: ext}
	pf.pollers = append(pf.pollers, poller)
	return poller, nil
}

func (pf *pollerFactory) last() *fakePoller {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.pollers[len(pf.pollers)-1]
}

// recorder collects events in the order the session raised them
type recorder struct {
	mu     sync.Mutex
	events []string
	errors []ErrorEvent
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.list() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) errorEvents() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEvent(nil), r.errors...)
}

func (r *recorder) attach(s *Session) {
	s.OnConnected(func() { r.add("connected") })
	s.OnConnectTimeout(func() { r.add("connect-timeout") })
	s.OnDisconnected(func() { r.add("disconnected") })
	s.OnError(func(e ErrorEvent) {
		r.mu.Lock()
		r.errors = append(r.errors, e)
		r.mu.Unlock()
		r.add("error:" + e.Level.String())
	})
	s.OnHandshakeResponse(func(m Message) { r.add("handshake") })
	s.OnConnectResponse(func(m Message) { r.add("connect") })
	s.OnSubscribeResponse(func(m Message) { r.add("subscribe:" + string(m.Subscription)) })
	s.OnUnsubscribeResponse(func(m Message) { r.add("unsubscribe:" + string(m.Subscription)) })
	s.OnPublishResponse(func(m Message) { r.add("publish:" + string(m.Channel)) })
	s.OnMessageReceived(func(m Message) { r.add("message:" + string(m.Channel)) })
}

func handshakeAck(clientID string) string {
	return fmt.Sprintf(`[{"channel":"/meta/handshake","successful":true,"clientId":%q,"version":"1.0"}]`, clientID)
}

func subscribeAck(channel string, successful bool) string {
	return fmt.Sprintf(`[{"channel":"/meta/subscribe","successful":%t,"subscription":%q}]`, successful, channel)
}

func unsubscribeAck(channel string, successful bool) string {
	return fmt.Sprintf(`[{"channel":"/meta/unsubscribe","successful":%t,"subscription":%q}]`, successful, channel)
}
