package wsconn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "hang up" {
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorded struct {
	opened   chan struct{}
	closed   chan struct{}
	errors   chan error
	messages chan string
}

func newRecorded() (*recorded, Handlers) {
	r := &recorded{
		opened:   make(chan struct{}, 4),
		closed:   make(chan struct{}, 4),
		errors:   make(chan error, 4),
		messages: make(chan string, 4),
	}
	return r, Handlers{
		Opened:          func() { r.opened <- struct{}{} },
		Closed:          func() { r.closed <- struct{}{} },
		Error:           func(err error) { r.errors <- err },
		MessageReceived: func(msg string) { r.messages <- msg },
	}
}

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestConn_Echo(t *testing.T) {
	r, handlers := newRecorded()
	conn := New(echoServer(t), nil, nil, handlers)
	assert.Equal(t, Closed, conn.State())
	assert.ErrorIs(t, conn.Send("too early"), ErrNotOpen)

	conn.Open()
	wait(t, r.opened, "opened")
	assert.Equal(t, Open, conn.State())

	require.NoError(t, conn.Send(`[{"channel":"/meta/connect"}]`))
	assert.Equal(t, `[{"channel":"/meta/connect"}]`, wait(t, r.messages, "echo"))

	require.NoError(t, conn.Close())
	wait(t, r.closed, "closed")
	assert.Equal(t, Closed, conn.State())
	assert.ErrorIs(t, conn.Send("too late"), ErrNotOpen)
	assert.Empty(t, r.errors)
}

func TestConn_ServerHangsUp(t *testing.T) {
	r, handlers := newRecorded()
	conn := New(echoServer(t), nil, nil, handlers)

	conn.Open()
	wait(t, r.opened, "opened")
	require.NoError(t, conn.Send("hang up"))

	wait(t, r.closed, "closed")
	assert.Equal(t, Closed, conn.State())
}

func TestConn_DialFailure(t *testing.T) {
	r, handlers := newRecorded()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	conn := New("ws"+strings.TrimPrefix(srv.URL, "http"), nil, nil, handlers)
	conn.Open()

	err := wait(t, r.errors, "dial error")
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	wait(t, r.closed, "closed")
	assert.Empty(t, r.opened)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	r, handlers := newRecorded()
	conn := New(echoServer(t), nil, nil, handlers)
	conn.Open()
	wait(t, r.opened, "opened")

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	wait(t, r.closed, "closed")

	select {
	case <-r.closed:
		t.Fatal("closed raised twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestState_String(t *testing.T) {
	testCases := []struct {
		state State
		want  string
	}{
		{Connecting, "connecting"},
		{Open, "open"},
		{Closing, "closing"},
		{Closed, "closed"},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.state.String())
		})
	}
}
