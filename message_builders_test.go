package gofaye

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRequestBuilder_AddSupportedConnectionType(t *testing.T) {
	testCases := []struct {
		connectionType string
		wantErr        bool
	}{
		{ConnectionTypeLongPolling, false},
		{ConnectionTypeCallbackPolling, false},
		{ConnectionTypeIFrame, false},
		{ConnectionTypeWebSocket, false},
		{"invalid-polling", true},
		{"", true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.connectionType, func(t *testing.T) {
			err := NewHandshakeRequestBuilder().AddSupportedConnectionType(tc.connectionType)
			if tc.wantErr {
				assert.Equal(t, BadConnectionTypeError{tc.connectionType}, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHandshakeRequestBuilder_AddVersion(t *testing.T) {
	testCases := []struct {
		version string
		wantErr bool
	}{
		{"1.0", false},
		{"1.0beta", false},
		{"10.0", false},
		{"2", false},
		{".0", true},
		{"a.0", true},
		{"", true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run("version "+tc.version, func(t *testing.T) {
			b := NewHandshakeRequestBuilder()
			err := b.AddVersion(tc.version)
			minErr := b.AddMinimumVersion(tc.version)
			if tc.wantErr {
				assert.Equal(t, BadConnectionVersionError{tc.version}, err)
				assert.Error(t, minErr)
				return
			}
			assert.NoError(t, err)
			assert.NoError(t, minErr)
		})
	}
}

func TestHandshakeRequestBuilder_Build(t *testing.T) {
	b := NewHandshakeRequestBuilder()
	_, err := b.Build()
	assert.ErrorIs(t, err, ErrNoSupportedConnectionTypes)

	require.NoError(t, b.AddSupportedConnectionType(ConnectionTypeWebSocket))
	require.NoError(t, b.AddSupportedConnectionType(ConnectionTypeLongPolling))
	require.NoError(t, b.AddSupportedConnectionType(ConnectionTypeWebSocket))
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrNoVersion)

	require.NoError(t, b.AddVersion("1.0"))
	b.AddExt(json.RawMessage(`{"token":"t"}`))
	ms, err := b.Build()
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, MetaHandshake, ms[0].Channel)
	assert.Equal(t, []string{ConnectionTypeWebSocket, ConnectionTypeLongPolling}, ms[0].SupportedConnectionTypes)
	assert.Empty(t, ms[0].ClientID)
	assert.JSONEq(t, `{"token":"t"}`, string(ms[0].Ext))
}

func TestSubscriptionBuilders_Build(t *testing.T) {
	type builder interface {
		AddClientID(string)
		AddSubscription(Channel) error
		Build() ([]Message, error)
	}
	testCases := []struct {
		name     string
		meta     Channel
		builder  func() builder
		clientID string
		channels []Channel
		wantErr  error
		want     []Channel
	}{
		{
			name:     "subscribe without client id",
			meta:     MetaSubscribe,
			builder:  func() builder { return NewSubscribeRequestBuilder() },
			channels: []Channel{"/foo"},
			wantErr:  ErrMissingClientID,
		},
		{
			name:     "subscribe with nothing to subscribe to",
			meta:     MetaSubscribe,
			builder:  func() builder { return NewSubscribeRequestBuilder() },
			clientID: "abc",
			wantErr:  EmptySliceError("subscriptions"),
		},
		{
			name:     "subscribe deduplicates",
			meta:     MetaSubscribe,
			builder:  func() builder { return NewSubscribeRequestBuilder() },
			clientID: "abc",
			channels: []Channel{"/foo", "/bar/*", "/foo"},
			want:     []Channel{"/foo", "/bar/*"},
		},
		{
			name:     "unsubscribe without client id",
			meta:     MetaUnsubscribe,
			builder:  func() builder { return NewUnsubscribeRequestBuilder() },
			channels: []Channel{"/foo"},
			wantErr:  ErrMissingClientID,
		},
		{
			name:     "unsubscribe one message per channel",
			meta:     MetaUnsubscribe,
			builder:  func() builder { return NewUnsubscribeRequestBuilder() },
			clientID: "abc",
			channels: []Channel{"/a/**", "/b"},
			want:     []Channel{"/a/**", "/b"},
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			b := tc.builder()
			b.AddClientID(tc.clientID)
			for _, c := range tc.channels {
				require.NoError(t, b.AddSubscription(c))
			}
			ms, err := b.Build()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, ms, len(tc.want))
			for i, m := range ms {
				assert.Equal(t, tc.meta, m.Channel)
				assert.Equal(t, tc.clientID, m.ClientID)
				assert.Equal(t, tc.want[i], m.Subscription)
			}
		})
	}
}

func TestSubscribeRequestBuilder_SharesExt(t *testing.T) {
	b := NewSubscribeRequestBuilder()
	b.AddClientID("abc")
	b.AddExt(json.RawMessage(`{"k":1}`))
	require.NoError(t, b.AddSubscription("/x"))
	require.NoError(t, b.AddSubscription("/y"))

	ms, err := b.Build()
	require.NoError(t, err)
	for _, m := range ms {
		assert.JSONEq(t, `{"k":1}`, string(m.Ext))
	}
}

func TestSubscribeRequestBuilder_AddSubscriptionRejectsInvalidChannel(t *testing.T) {
	err := NewSubscribeRequestBuilder().AddSubscription("/foo/*/bar")
	var invalid InvalidChannelError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, Channel("/foo/*/bar"), invalid.Channel)
}

func TestPublishRequestBuilder_AddChannel(t *testing.T) {
	testCases := []struct {
		name    string
		channel Channel
		wantErr bool
	}{
		{"broadcast channel", "/chat/room", false},
		{"service channel", "/service/echo", false},
		{"meta channel", "/meta/connect", true},
		{"wildcard channel", "/chat/*", true},
		{"relative channel", "chat/room", true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			err := NewPublishRequestBuilder().AddChannel(tc.channel)
			if tc.wantErr {
				assert.Equal(t, InvalidChannelError{tc.channel}, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPublishRequestBuilder_Build(t *testing.T) {
	b := NewPublishRequestBuilder()
	_, err := b.Build()
	assert.ErrorIs(t, err, ErrMissingClientID)

	b.AddClientID("abc")
	_, err = b.Build()
	assert.Error(t, err, "a publish needs a channel")

	require.NoError(t, b.AddChannel("/chat/room"))
	b.AddData(json.RawMessage(`"hi"`))
	ms, err := b.Build()
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, Channel("/chat/room"), ms[0].Channel)
	assert.Equal(t, "abc", ms[0].ClientID)
	assert.Equal(t, `"hi"`, string(ms[0].Data))
}

func TestConnectRequestBuilder_Build(t *testing.T) {
	b := NewConnectRequestBuilder()
	assert.Error(t, b.AddConnectionType("carrier-pigeon"))

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrMissingClientID)

	b.AddClientID("abc")
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrMissingConnectionType)

	require.NoError(t, b.AddConnectionType(ConnectionTypeLongPolling))
	ms, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []Message{{Channel: MetaConnect, ClientID: "abc", ConnectionType: ConnectionTypeLongPolling}}, ms)
}

func TestDisconnectRequestBuilder_Build(t *testing.T) {
	b := NewDisconnectRequestBuilder()
	_, err := b.Build()
	assert.ErrorIs(t, err, ErrMissingClientID)

	b.AddClientID("abc")
	ms, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []Message{{Channel: MetaDisconnect, ClientID: "abc"}}, ms)
}
