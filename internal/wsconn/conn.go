// Package wsconn is a duplex text-frame socket over gorilla/websocket with
// an asynchronous Open and callback style events.
package wsconn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of a Conn
type State int32

const (
	// Connecting means Open was called and the dial has not finished
	Connecting State = iota
	// Open means frames can be sent and are being read
	Open
	// Closing means Close was called
	Closing
	// Closed means the socket is gone
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

// ErrNotOpen is returned by Send when the socket is not Open
var ErrNotOpen = errors.New("websocket is not open")

const closeGracePeriod = time.Second

// Handlers are the callbacks a Conn raises. Nil handlers are skipped. They
// are called from the Conn's read goroutine.
type Handlers struct {
	Opened          func()
	Closed          func()
	Error           func(error)
	MessageReceived func(string)
}

// Conn is one websocket connection attempt. It is not reusable: once Closed
// a new Conn must be created.
type Conn struct {
	url      string
	dialer   *websocket.Dialer
	header   http.Header
	handlers Handlers

	state     atomic.Int32
	lock      sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	writeLock sync.Mutex
	closeOnce sync.Once
}

// New prepares a Conn for url. A nil dialer means websocket.DefaultDialer.
func New(url string, dialer *websocket.Dialer, header http.Header, handlers Handlers) *Conn {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c := &Conn{
		url:      url,
		dialer:   dialer,
		header:   header,
		handlers: handlers,
	}
	c.state.Store(int32(Closed))
	return c
}

// State reports where the Conn is in its lifecycle
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Open starts dialing in the background and returns immediately. Opened
// or Error followed by Closed is raised once the dial finishes.
func (c *Conn) Open() {
	ctx, cancel := context.WithCancel(context.Background())
	c.lock.Lock()
	c.cancel = cancel
	c.lock.Unlock()
	c.state.Store(int32(Connecting))
	go c.run(ctx)
}

func (c *Conn) run(ctx context.Context) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if c.State() == Connecting {
			c.raiseError(err)
		}
		c.finish()
		return
	}

	c.lock.Lock()
	if c.State() != Connecting {
		// Close won the race with the dial.
		c.lock.Unlock()
		_ = conn.Close()
		c.finish()
		return
	}
	c.conn = conn
	c.state.Store(int32(Open))
	c.lock.Unlock()

	if c.handlers.Opened != nil {
		c.handlers.Opened()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == Open && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.raiseError(err)
			}
			break
		}
		if c.handlers.MessageReceived != nil {
			c.handlers.MessageReceived(string(data))
		}
	}
	_ = conn.Close()
	c.finish()
}

// Send writes msg as a single text frame
func (c *Conn) Send(msg string) error {
	c.lock.Lock()
	conn := c.conn
	c.lock.Unlock()
	if conn == nil || c.State() != Open {
		return ErrNotOpen
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Close sends a normal closure frame, closes the connection and aborts a
// dial still in progress. Closed is raised once.
func (c *Conn) Close() error {
	c.lock.Lock()
	previous := c.State()
	if previous == Closing || previous == Closed {
		c.lock.Unlock()
		return nil
	}
	c.state.Store(int32(Closing))
	conn, cancel := c.conn, c.cancel
	c.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	c.writeLock.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	c.writeLock.Unlock()
	return conn.Close()
}

func (c *Conn) raiseError(err error) {
	if c.handlers.Error != nil {
		c.handlers.Error(err)
	}
}

func (c *Conn) finish() {
	c.state.Store(int32(Closed))
	c.closeOnce.Do(func() {
		if c.handlers.Closed != nil {
			c.handlers.Closed()
		}
	})
}
