package gofaye

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sigmavirus24/gofaye/internal/longpoll"
	"github.com/sigmavirus24/gofaye/internal/wsconn"
)

// SocketState is the wire level state of a Socket
type SocketState int

const (
	// SocketConnecting means the socket is being opened
	SocketConnecting SocketState = iota
	// SocketOpen means frames can be exchanged
	SocketOpen
	// SocketClosing means a close was requested
	SocketClosing
	// SocketClosed means the socket is gone
	SocketClosed
)

// SocketHandlers are the callbacks a Socket raises
type SocketHandlers struct {
	Opened          func()
	Closed          func()
	Error           func(error)
	MessageReceived func(string)
}

// Socket is the duplex text-frame connection used for ws:// and wss://
// URIs. Open must not block; the outcome is reported through
// SocketHandlers.
type Socket interface {
	Open()
	Close() error
	Send(string) error
	State() SocketState
}

// SocketDialer creates an unopened Socket for uri
type SocketDialer func(uri string, handlers SocketHandlers) (Socket, error)

// PollerHandlers are the callbacks a LongPoller raises
type PollerHandlers struct {
	Connected        func()
	ConnectionFailed func(error)
	Disconnected     func()
	ResponseReceived func(string)
}

// LongPoller is the long-polling connection used for http:// and https://
// URIs. It tracks the clientId assigned by the handshake it sends and
// manages its own request timeouts.
type LongPoller interface {
	Handshake(connectionType string, ext, advice json.RawMessage, async bool) error
	Connect() error
	Disconnect() error
	Subscribe(ext json.RawMessage, channel string, async bool) error
	Unsubscribe(ext json.RawMessage, channel string, async bool) error
	Publish(data, ext json.RawMessage, channel string, advice json.RawMessage, async bool) error
	StartLongPolling()
	SetTimeout(time.Duration)
	SetLongPollingTimeout(time.Duration)
	Dispose() error
}

// PollerDialer creates a LongPoller for uri. ext supplies the extension
// payload for the /meta/connect requests the poller sends on its own.
type PollerDialer func(uri string, ext func() json.RawMessage, handlers PollerHandlers) (LongPoller, error)

// link is the adapter side of one connection attempt
type link interface {
	// open starts the wire level connection
	open()
	// live reports whether the collaborator exists and is usable
	live() bool
	send(Message) error
	// startLongPolling is a no-op on transports without a poll loop
	startLongPolling()
	close() error
}

// transportPolicy is what differs between the two adapters once a link
// exists
type transportPolicy struct {
	connectionType string
	// handshakeOnConnect sends the handshake right after the link is
	// created instead of waiting for the socket to open.
	handshakeOnConnect bool
	// watchConnectTimeout starts a watchdog for every attempt.
	watchConnectTimeout bool
	// rearmOnConnectResponse sends /meta/connect again after every
	// connect response.
	rearmOnConnectResponse bool
}

type socketConn struct {
	*wsconn.Conn
}

func (c socketConn) State() SocketState {
	switch c.Conn.State() {
	case wsconn.Connecting:
		return SocketConnecting
	case wsconn.Open:
		return SocketOpen
	case wsconn.Closing:
		return SocketClosing
	default:
		return SocketClosed
	}
}

func newSocketDialer(dialer *websocket.Dialer, header http.Header) SocketDialer {
	return func(uri string, h SocketHandlers) (Socket, error) {
		conn := wsconn.New(uri, dialer, header, wsconn.Handlers{
			Opened:          h.Opened,
			Closed:          h.Closed,
			Error:           h.Error,
			MessageReceived: h.MessageReceived,
		})
		return socketConn{conn}, nil
	}
}

func newPollerDialer(client *http.Client, transport http.RoundTripper, header http.Header) PollerDialer {
	return func(uri string, ext func() json.RawMessage, h PollerHandlers) (LongPoller, error) {
		conn, err := longpoll.New(uri, longpoll.Options{
			Client:    client,
			Transport: transport,
			Header:    header,
			Ext:       ext,
		}, longpoll.Handlers{
			Connected:        h.Connected,
			ConnectionFailed: h.ConnectionFailed,
			Disconnected:     h.Disconnected,
			ResponseReceived: h.ResponseReceived,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
