package gofaye

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListeners_NoSubscribersIsNoop(t *testing.T) {
	l := newListeners()
	require.NotPanics(t, func() {
		l.emitConnected()
		l.emitConnectTimeout()
		l.emitDisconnected()
		l.emitError(ErrorEvent{Level: Warning})
		l.emitMessage(messageReceived, Message{Channel: "/foo/bar"})
	})
}

func TestListeners_RegistrationOrder(t *testing.T) {
	l := newListeners()
	var calls []string
	l.OnConnected(func() { calls = append(calls, "first") })
	l.OnConnected(func() { calls = append(calls, "second") })
	l.OnDisconnected(func() { calls = append(calls, "disconnected") })

	l.emitConnected()
	l.emitDisconnected()

	assert.Equal(t, []string{"first", "second", "disconnected"}, calls)
}

func TestListeners_MessageEvents(t *testing.T) {
	testCases := []struct {
		name     string
		register func(*Listeners, func(Message))
		event    messageEvent
	}{
		{"handshake", (*Listeners).OnHandshakeResponse, handshakeResponse},
		{"connect", (*Listeners).OnConnectResponse, connectResponse},
		{"subscribe", (*Listeners).OnSubscribeResponse, subscribeResponse},
		{"unsubscribe", (*Listeners).OnUnsubscribeResponse, unsubscribeResponse},
		{"publish", (*Listeners).OnPublishResponse, publishResponse},
		{"message", (*Listeners).OnMessageReceived, messageReceived},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			l := newListeners()
			var got []Message
			tc.register(l, func(m Message) { got = append(got, m) })

			for _, other := range testCases {
				l.emitMessage(other.event, Message{Channel: Channel("/" + other.name)})
			}

			require.Len(t, got, 1)
			assert.Equal(t, Channel("/"+tc.name), got[0].Channel)
		})
	}
}

func TestListeners_ErrorEvents(t *testing.T) {
	l := newListeners()
	var got []ErrorEvent
	l.OnError(func(e ErrorEvent) { got = append(got, e) })
	l.OnConnectTimeout(func() { got = append(got, ErrorEvent{Level: Fatal}) })

	l.emitError(ErrorEvent{Level: Severe, Data: map[string]interface{}{"type": "transport"}})
	l.emitConnectTimeout()

	require.Len(t, got, 2)
	assert.Equal(t, Severe, got[0].Level)
	assert.Equal(t, "transport", got[0].Data["type"])
	assert.Equal(t, Fatal, got[1].Level)
}

func TestListeners_RegisterDuringEmit(t *testing.T) {
	l := newListeners()
	calls := 0
	l.OnConnected(func() {
		calls++
		l.OnConnected(func() { calls++ })
	})

	l.emitConnected()
	assert.Equal(t, 1, calls)

	l.emitConnected()
	assert.Equal(t, 3, calls)
}

func TestListeners_EmitUsesSnapshot(t *testing.T) {
	l := newListeners()
	var calls []string
	l.OnError(func(ErrorEvent) {
		calls = append(calls, "error")
		l.OnError(func(ErrorEvent) { calls = append(calls, "late error") })
	})
	l.OnMessageReceived(func(Message) {
		calls = append(calls, "message")
		l.OnMessageReceived(func(Message) { calls = append(calls, "late message") })
	})
	l.OnDisconnected(func() {
		calls = append(calls, "disconnected")
		l.OnDisconnected(func() { calls = append(calls, "late disconnected") })
	})

	l.emitError(ErrorEvent{Level: Severe})
	l.emitMessage(messageReceived, Message{Channel: "/foo/bar"})
	l.emitDisconnected()
	assert.Equal(t, []string{"error", "message", "disconnected"}, calls)

	calls = nil
	l.emitDisconnected()
	assert.Equal(t, []string{"disconnected", "late disconnected"}, calls)
}
