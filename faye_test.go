package gofaye

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_SelectsTransportByScheme(t *testing.T) {
	testCases := []struct {
		name string
		uri  string
		want string
	}{
		{"http", "http://example.com/faye", ConnectionTypeLongPolling},
		{"https", "https://example.com/faye", ConnectionTypeLongPolling},
		{"upper case scheme", "HTTPS://example.com/faye", ConnectionTypeLongPolling},
		{"ws", "ws://example.com/faye", ConnectionTypeWebSocket},
		{"wss", "wss://example.com/faye", ConnectionTypeWebSocket},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSession(tc.uri)
			require.NoError(t, err)
			assert.Equal(t, tc.want, s.ConnectionType())
			assert.Equal(t, tc.uri, s.URI())
			assert.False(t, s.Opened())
			assert.Equal(t, unconnectedRepr, s.State())
		})
	}
}

func TestNewSession_UnsupportedScheme(t *testing.T) {
	dialed := false
	_, err := NewSession("ftp://example.com",
		WithSocketDialer(func(string, SocketHandlers) (Socket, error) {
			dialed = true
			return nil, errors.New("unexpected dial")
		}),
		WithPollerDialer(func(string, func() json.RawMessage, PollerHandlers) (LongPoller, error) {
			dialed = true
			return nil, errors.New("unexpected dial")
		}),
	)

	var schemeErr UnsupportedSchemeError
	require.True(t, errors.As(err, &schemeErr), "got %v", err)
	assert.Equal(t, "ftp", schemeErr.Scheme)
	assert.Equal(t, `uri scheme "ftp" was not recognized`, err.Error())
	assert.False(t, dialed)
}

func TestNewSession_DialFailure(t *testing.T) {
	s, err := NewSession("wss://example.com/faye", WithSocketDialer(func(string, SocketHandlers) (Socket, error) {
		return nil, errors.New("no route to host")
	}))
	require.NoError(t, err)

	err = s.Connect("")
	var connErr ConnectionFailedError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.EqualError(t, connErr.Err, "no route to host")
	assert.False(t, s.Opened())
}

func TestNewSession_Options(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	registry := prometheus.NewRegistry()
	sf := &socketFactory{}

	s, err := NewSession("ws://example.com/faye",
		WithLogger(logger),
		WithMetrics(registry),
		WithMetricsNamespace("faye_options_test"),
		WithMessageExt(map[string]string{"token": "t"}),
		WithSocketDialer(sf.dial),
	)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, s.Timeout())
	assert.JSONEq(t, `{"token":"t"}`, string(s.MessageExt()))

	require.NoError(t, s.Connect(""))
	sf.last().open()

	var sawHandshake bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["at"] == "send" && entry.Data["channel"] == string(MetaHandshake) {
			sawHandshake = true
			assert.Equal(t, ConnectionTypeWebSocket, entry.Data["transport"])
		}
	}
	assert.True(t, sawHandshake, "expected a debug entry for the handshake")

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewSession_BadMessageExt(t *testing.T) {
	_, err := NewSession("ws://example.com/faye", WithMessageExt(make(chan int)))
	assert.Error(t, err)
}

func TestWithSlogLogger(t *testing.T) {
	sf := &socketFactory{}
	s, err := NewSession("ws://example.com/faye",
		WithSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSocketDialer(sf.dial),
	)
	require.NoError(t, err)
	require.NoError(t, s.Connect(""))
	sf.last().open()
	assert.Len(t, sf.last().sent(t), 1)
}
