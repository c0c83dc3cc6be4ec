package gofaye

import (
	"encoding/json"
	"strconv"
	"strings"
)

func validConnectionType(connectionType string) bool {
	switch connectionType {
	case ConnectionTypeCallbackPolling, ConnectionTypeLongPolling, ConnectionTypeIFrame, ConnectionTypeWebSocket:
		return true
	}
	return false
}

// validVersion only requires a numeric major component
func validVersion(version string) error {
	major, _, _ := strings.Cut(version, ".")
	if _, err := strconv.Atoi(major); err != nil {
		return BadConnectionVersionError{version}
	}
	return nil
}

// envelope holds the fields every client request may carry
type envelope struct {
	clientID string
	ext      json.RawMessage
}

// AddClientID sets the clientId assigned by the handshake
func (e *envelope) AddClientID(clientID string) {
	e.clientID = clientID
}

// AddExt sets the ext object sent with the request
func (e *envelope) AddExt(ext json.RawMessage) {
	e.ext = ext
}

func (e *envelope) stamp(channel Channel) (Message, error) {
	if e.clientID == "" {
		return Message{}, ErrMissingClientID
	}
	return Message{Channel: channel, ClientID: e.clientID, Ext: e.ext}, nil
}

// HandshakeRequestBuilder builds the /meta/handshake request.
//
// See also: https://docs.cometd.org/current/reference/#_handshake_request
type HandshakeRequestBuilder struct {
	version        string
	minimumVersion string
	connTypes      []string
	ext            json.RawMessage
}

// NewHandshakeRequestBuilder returns an empty HandshakeRequestBuilder
func NewHandshakeRequestBuilder() *HandshakeRequestBuilder {
	return &HandshakeRequestBuilder{}
}

// AddSupportedConnectionType appends a connection type the client can use.
// Duplicates are ignored and unknown types are rejected.
func (b *HandshakeRequestBuilder) AddSupportedConnectionType(connectionType string) error {
	if !validConnectionType(connectionType) {
		return BadConnectionTypeError{connectionType}
	}
	for _, known := range b.connTypes {
		if known == connectionType {
			return nil
		}
	}
	b.connTypes = append(b.connTypes, connectionType)
	return nil
}

// AddVersion sets the protocol version
func (b *HandshakeRequestBuilder) AddVersion(version string) error {
	if err := validVersion(version); err != nil {
		return err
	}
	b.version = version
	return nil
}

// AddMinimumVersion sets the oldest protocol version the client accepts
func (b *HandshakeRequestBuilder) AddMinimumVersion(version string) error {
	if err := validVersion(version); err != nil {
		return err
	}
	b.minimumVersion = version
	return nil
}

// AddExt sets the ext object sent with the handshake
func (b *HandshakeRequestBuilder) AddExt(ext json.RawMessage) {
	b.ext = ext
}

// Build returns the handshake message
func (b *HandshakeRequestBuilder) Build() ([]Message, error) {
	switch {
	case len(b.connTypes) == 0:
		return nil, ErrNoSupportedConnectionTypes
	case b.version == "":
		return nil, ErrNoVersion
	}
	return []Message{{
		Channel:                  MetaHandshake,
		Version:                  b.version,
		MinimumVersion:           b.minimumVersion,
		SupportedConnectionTypes: b.connTypes,
		Ext:                      b.ext,
	}}, nil
}

// ConnectRequestBuilder builds a /meta/connect request.
//
// See also: https://docs.cometd.org/current/reference/#_connect_request
type ConnectRequestBuilder struct {
	envelope
	connectionType string
}

// NewConnectRequestBuilder returns an empty ConnectRequestBuilder
func NewConnectRequestBuilder() *ConnectRequestBuilder {
	return &ConnectRequestBuilder{}
}

// AddConnectionType sets the transport the connect is sent over
func (b *ConnectRequestBuilder) AddConnectionType(connectionType string) error {
	if !validConnectionType(connectionType) {
		return BadConnectionTypeError{connectionType}
	}
	b.connectionType = connectionType
	return nil
}

// Build returns the connect message
func (b *ConnectRequestBuilder) Build() ([]Message, error) {
	m, err := b.stamp(MetaConnect)
	if err != nil {
		return nil, err
	}
	if b.connectionType == "" {
		return nil, ErrMissingConnectionType
	}
	m.ConnectionType = b.connectionType
	return []Message{m}, nil
}

// channelList collects the channels of a subscribe or unsubscribe request.
// Each channel becomes its own message sharing the clientId and ext.
type channelList struct {
	envelope
	channels []Channel
}

// AddSubscription appends a channel, ignoring duplicates
func (l *channelList) AddSubscription(c Channel) error {
	if !c.IsValid() {
		return InvalidChannelError{c}
	}
	for _, known := range l.channels {
		if known == c {
			return nil
		}
	}
	l.channels = append(l.channels, c)
	return nil
}

func (l *channelList) build(meta Channel) ([]Message, error) {
	base, err := l.stamp(meta)
	if err != nil {
		return nil, err
	}
	if len(l.channels) == 0 {
		return nil, EmptySliceError("subscriptions")
	}
	ms := make([]Message, 0, len(l.channels))
	for _, c := range l.channels {
		m := base
		m.Subscription = c
		ms = append(ms, m)
	}
	return ms, nil
}

// SubscribeRequestBuilder builds /meta/subscribe requests.
//
// See also: https://docs.cometd.org/current/reference/#_subscribe_request
type SubscribeRequestBuilder struct {
	channelList
}

// NewSubscribeRequestBuilder returns an empty SubscribeRequestBuilder
func NewSubscribeRequestBuilder() *SubscribeRequestBuilder {
	return &SubscribeRequestBuilder{}
}

// Build returns one subscribe message per channel
func (b *SubscribeRequestBuilder) Build() ([]Message, error) {
	return b.build(MetaSubscribe)
}

// UnsubscribeRequestBuilder builds /meta/unsubscribe requests.
//
// See also: https://docs.cometd.org/current/reference/#_unsubscribe_request
type UnsubscribeRequestBuilder struct {
	channelList
}

// NewUnsubscribeRequestBuilder returns an empty UnsubscribeRequestBuilder
func NewUnsubscribeRequestBuilder() *UnsubscribeRequestBuilder {
	return &UnsubscribeRequestBuilder{}
}

// Build returns one unsubscribe message per channel
func (b *UnsubscribeRequestBuilder) Build() ([]Message, error) {
	return b.build(MetaUnsubscribe)
}

// PublishRequestBuilder builds a message publishing data to a broadcast or
// service channel.
//
// See also: https://docs.cometd.org/current/reference/#_publish_event_messages
type PublishRequestBuilder struct {
	envelope
	channel Channel
	data    json.RawMessage
}

// NewPublishRequestBuilder returns an empty PublishRequestBuilder
func NewPublishRequestBuilder() *PublishRequestBuilder {
	return &PublishRequestBuilder{}
}

// AddChannel sets the target channel. Meta and wildcard channels are
// rejected.
func (b *PublishRequestBuilder) AddChannel(c Channel) error {
	if !c.IsValid() || c.HasWildcard() || c.Type() == MetaChannel {
		return InvalidChannelError{c}
	}
	b.channel = c
	return nil
}

// AddData sets the already encoded payload
func (b *PublishRequestBuilder) AddData(data json.RawMessage) {
	b.data = data
}

// Build returns the publish message
func (b *PublishRequestBuilder) Build() ([]Message, error) {
	m, err := b.stamp(b.channel)
	if err != nil {
		return nil, err
	}
	if b.channel == emptyChannel {
		return nil, InvalidChannelError{b.channel}
	}
	m.Data = b.data
	return []Message{m}, nil
}

// DisconnectRequestBuilder builds the /meta/disconnect request. It never
// carries ext.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_meta_disconnect
type DisconnectRequestBuilder struct {
	clientID string
}

// NewDisconnectRequestBuilder returns an empty DisconnectRequestBuilder
func NewDisconnectRequestBuilder() *DisconnectRequestBuilder {
	return &DisconnectRequestBuilder{}
}

// AddClientID sets the clientId assigned by the handshake
func (b *DisconnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// Build returns the disconnect message
func (b *DisconnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	return []Message{{Channel: MetaDisconnect, ClientID: b.clientID}}, nil
}
