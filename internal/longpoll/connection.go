// Package longpoll implements the Bayeux long-polling transport: requests
// are POSTed as JSON arrays, and a single /meta/connect is kept outstanding
// while polling is active.
//
// See also: https://docs.cometd.org/current/reference/#_two_connection_operation
package longpoll

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	sjson "github.com/segmentio/encoding/json"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

const (
	// ConnectionType is the Bayeux connection type this transport speaks
	ConnectionType = "long-polling"

	// DefaultTimeout bounds a single non-connect request
	DefaultTimeout = 30 * time.Second

	version = "1.0"
)

var (
	// ErrDisposed is returned by every operation after Dispose
	ErrDisposed = errors.New("long-polling connection disposed")

	// ErrHandshakeAdvised is passed to ConnectionFailed when the server asks
	// for a new handshake
	ErrHandshakeAdvised = errors.New("server advised a new handshake")
)

// StatusError is returned when the server answers with something other than
// 200 OK
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e StatusError) Error() string {
	return fmt.Sprintf(
		"expected 200 response from bayeux server, got %d with status '%s' and body '%s'",
		e.StatusCode,
		e.Status,
		e.Body,
	)
}

// Handlers are the callbacks a Connection raises. Nil handlers are skipped.
type Handlers struct {
	// Connected is raised when the handshake request was answered
	// successfully, before its response is delivered.
	Connected func()
	// ConnectionFailed is raised when a request could not be completed or
	// the server advised against continuing.
	ConnectionFailed func(error)
	// Disconnected is raised after a disconnect exchange or when the server
	// advises reconnect "none".
	Disconnected func()
	// ResponseReceived gets every response body, a JSON array of messages.
	ResponseReceived func(string)
}

// Options configures a Connection
type Options struct {
	// Client performs the requests. When nil a client with a public suffix
	// aware cookie jar is created.
	Client *http.Client
	// Transport is used by the client created when Client is nil
	Transport http.RoundTripper
	// Header is added to every request
	Header http.Header
	// Ext supplies the extension payload for each /meta/connect
	Ext func() json.RawMessage
}

type message struct {
	Channel                  string          `json:"channel"`
	ClientID                 string          `json:"clientId,omitempty"`
	Version                  string          `json:"version,omitempty"`
	SupportedConnectionTypes []string        `json:"supportedConnectionTypes,omitempty"`
	ConnectionType           string          `json:"connectionType,omitempty"`
	Subscription             string          `json:"subscription,omitempty"`
	Data                     json.RawMessage `json:"data,omitempty"`
	Ext                      json.RawMessage `json:"ext,omitempty"`
	Advice                   json.RawMessage `json:"advice,omitempty"`
}

type advice struct {
	Reconnect string `json:"reconnect,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
	Interval  int    `json:"interval,omitempty"`
}

type reply struct {
	Channel    string  `json:"channel"`
	ClientID   string  `json:"clientId,omitempty"`
	Successful bool    `json:"successful,omitempty"`
	Advice     *advice `json:"advice,omitempty"`
}

type request struct {
	messages   []message
	handshake  bool
	disconnect bool
}

// Connection is a long-polling session with one Bayeux server. It tracks
// the clientId assigned by the handshake itself.
type Connection struct {
	client   *http.Client
	url      *url.URL
	header   http.Header
	ext      func() json.RawMessage
	handlers Handlers

	lock               sync.Mutex
	clientID           string
	timeout            time.Duration
	longPollingTimeout time.Duration
	advisedTimeout     time.Duration
	advisedInterval    time.Duration
	queue              []request
	polling            bool
	connectInFlight    bool
	disposed           bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

// New creates a Connection for serverAddress and starts its sender
func New(serverAddress string, opts Options, handlers Handlers) (*Connection, error) {
	parsedAddress, err := url.Parse(serverAddress)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		client = &http.Client{Jar: jar, Transport: opts.Transport}
	}

	ext := opts.Ext
	if ext == nil {
		ext = func() json.RawMessage { return nil }
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		client:             client,
		url:                parsedAddress,
		header:             opts.Header,
		ext:                ext,
		handlers:           handlers,
		timeout:            DefaultTimeout,
		longPollingTimeout: DefaultTimeout,
		wake:               make(chan struct{}, 1),
		ctx:                ctx,
		cancel:             cancel,
	}
	c.group.Go(c.sendLoop)
	return c, nil
}

// SetTimeout bounds every non-connect request
func (c *Connection) SetTimeout(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.timeout = d
}

// SetLongPollingTimeout bounds every /meta/connect on top of the timeout
// the server advised
func (c *Connection) SetLongPollingTimeout(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.longPollingTimeout = d
}

// ClientID is the identifier from the last successful handshake
func (c *Connection) ClientID() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.clientID
}

// Handshake sends /meta/handshake. When async is false the exchange runs on
// the caller's goroutine and its error is returned.
func (c *Connection) Handshake(connectionType string, ext, adv json.RawMessage, async bool) error {
	return c.submit(request{
		messages: []message{{
			Channel:                  "/meta/handshake",
			Version:                  version,
			SupportedConnectionTypes: []string{connectionType},
			Ext:                      ext,
			Advice:                   adv,
		}},
		handshake: true,
	}, async)
}

// Subscribe sends /meta/subscribe for channel
func (c *Connection) Subscribe(ext json.RawMessage, channel string, async bool) error {
	return c.submit(request{messages: []message{{
		Channel:      "/meta/subscribe",
		ClientID:     c.ClientID(),
		Subscription: channel,
		Ext:          ext,
	}}}, async)
}

// Unsubscribe sends /meta/unsubscribe for channel
func (c *Connection) Unsubscribe(ext json.RawMessage, channel string, async bool) error {
	return c.submit(request{messages: []message{{
		Channel:      "/meta/unsubscribe",
		ClientID:     c.ClientID(),
		Subscription: channel,
		Ext:          ext,
	}}}, async)
}

// Publish sends data to channel
func (c *Connection) Publish(data, ext json.RawMessage, channel string, adv json.RawMessage, async bool) error {
	return c.submit(request{messages: []message{{
		Channel:  channel,
		ClientID: c.ClientID(),
		Data:     data,
		Ext:      ext,
		Advice:   adv,
	}}}, async)
}

// Disconnect queues /meta/disconnect and stops polling once it is answered
func (c *Connection) Disconnect() error {
	return c.submit(request{
		messages:   []message{{Channel: "/meta/disconnect", ClientID: c.ClientID()}},
		disconnect: true,
	}, true)
}

// Connect sends a single /meta/connect unless one is already outstanding
func (c *Connection) Connect() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if c.connectInFlight {
		return nil
	}
	c.connectInFlight = true
	c.group.Go(c.connectOnce)
	return nil
}

// StartLongPolling keeps a /meta/connect outstanding until Dispose,
// Disconnect, a transport failure, or advice tells it to stop.
func (c *Connection) StartLongPolling() {
	c.lock.Lock()
	if c.disposed || c.polling {
		c.lock.Unlock()
		return
	}
	c.polling = true
	inFlight := c.connectInFlight
	c.lock.Unlock()

	if !inFlight {
		_ = c.Connect()
	}
}

// Dispose stops polling and the sender. Requests already queued are still
// sent; new ones fail with ErrDisposed. It does not wait for goroutines to
// exit, see Wait.
func (c *Connection) Dispose() error {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return nil
	}
	c.disposed = true
	c.polling = false
	c.lock.Unlock()

	c.cancel()
	c.signal()
	return nil
}

// Wait blocks until every goroutine started by the Connection has exited.
// It only returns after Dispose.
func (c *Connection) Wait() error {
	return c.group.Wait()
}

func (c *Connection) submit(r request, async bool) error {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return ErrDisposed
	}
	if !async {
		c.lock.Unlock()
		return c.exchange(r)
	}
	c.queue = append(c.queue, r)
	c.lock.Unlock()
	c.signal()
	return nil
}

func (c *Connection) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) sendLoop() error {
	for {
		c.lock.Lock()
		if len(c.queue) == 0 {
			disposed := c.disposed
			c.lock.Unlock()
			if disposed {
				return nil
			}
			<-c.wake
			continue
		}
		r := c.queue[0]
		c.queue = c.queue[1:]
		c.lock.Unlock()

		_ = c.exchange(r)
	}
}

func (c *Connection) exchange(r request) error {
	c.lock.Lock()
	timeout := c.timeout
	c.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	body, err := c.do(ctx, r.messages)
	if err != nil {
		c.raiseFailed(err)
		return err
	}

	if r.handshake && c.rememberHandshake(body) && c.handlers.Connected != nil {
		c.handlers.Connected()
	}
	c.raiseResponse(body)
	if r.disconnect {
		c.lock.Lock()
		c.polling = false
		c.lock.Unlock()
		if c.handlers.Disconnected != nil {
			c.handlers.Disconnected()
		}
	}
	return nil
}

func (c *Connection) connectOnce() error {
	c.lock.Lock()
	deadline := c.longPollingTimeout + c.advisedTimeout
	m := message{
		Channel:        "/meta/connect",
		ClientID:       c.clientID,
		ConnectionType: ConnectionType,
	}
	c.lock.Unlock()
	m.Ext = c.ext()

	ctx, cancel := context.WithTimeout(c.ctx, deadline)
	body, err := c.do(ctx, []message{m})
	cancel()

	c.lock.Lock()
	c.connectInFlight = false
	c.lock.Unlock()

	if err != nil {
		if c.ctx.Err() != nil {
			return nil
		}
		c.stopPolling()
		c.raiseFailed(err)
		return nil
	}
	c.raiseResponse(body)

	a := connectAdvice(body)
	switch a.Reconnect {
	case "none":
		if c.stopPolling() && c.handlers.Disconnected != nil {
			c.handlers.Disconnected()
		}
		return nil
	case "handshake":
		c.stopPolling()
		c.raiseFailed(ErrHandshakeAdvised)
		return nil
	}

	c.lock.Lock()
	if a.Interval > 0 {
		c.advisedInterval = time.Duration(a.Interval) * time.Millisecond
	}
	if a.Timeout > 0 {
		c.advisedTimeout = time.Duration(a.Timeout) * time.Millisecond
	}
	polling, interval := c.polling, c.advisedInterval
	c.lock.Unlock()
	if !polling {
		return nil
	}

	if interval > 0 {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			return nil
		}
	}
	_ = c.Connect()
	return nil
}

func (c *Connection) stopPolling() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	was := c.polling
	c.polling = false
	return was
}

func (c *Connection) do(ctx context.Context, ms []message) (string, error) {
	payload, err := sjson.Marshal(ms)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", StatusError{resp.StatusCode, resp.Status, body}
	}
	return string(body), nil
}

// rememberHandshake stores the clientId and advice of a successful
// handshake reply and reports whether there was one.
func (c *Connection) rememberHandshake(body string) bool {
	var replies []reply
	if err := sjson.Unmarshal([]byte(body), &replies); err != nil {
		return false
	}
	for _, r := range replies {
		if r.Channel != "/meta/handshake" || !r.Successful {
			continue
		}
		c.lock.Lock()
		c.clientID = r.ClientID
		if r.Advice != nil {
			c.advisedTimeout = time.Duration(r.Advice.Timeout) * time.Millisecond
			c.advisedInterval = time.Duration(r.Advice.Interval) * time.Millisecond
		}
		c.lock.Unlock()
		return true
	}
	return false
}

func connectAdvice(body string) advice {
	var replies []reply
	if err := sjson.Unmarshal([]byte(body), &replies); err != nil {
		return advice{}
	}
	for _, r := range replies {
		if r.Channel == "/meta/connect" && r.Advice != nil {
			return *r.Advice
		}
	}
	return advice{}
}

func (c *Connection) raiseFailed(err error) {
	if c.handlers.ConnectionFailed != nil {
		c.handlers.ConnectionFailed(err)
	}
}

func (c *Connection) raiseResponse(body string) {
	if c.handlers.ResponseReceived != nil {
		c.handlers.ResponseReceived(body)
	}
}
