package gofaye

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	sjson "github.com/segmentio/encoding/json"
)

const (
	timestampFmt = "2006-01-02T15:04:05.00"
)

// Message is one Bayeux envelope. The same type is used for requests the
// session sends, replies from the server, and events delivered on
// subscribed channels; fields that don't apply stay empty and are omitted
// on the wire.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_message_fields
type Message struct {
	// Channel is the only field every envelope carries
	Channel Channel `json:"channel"`
	// ClientID is assigned by the handshake reply and echoed on every
	// later request
	ClientID string `json:"clientId,omitempty"`
	ID       string `json:"id,omitempty"`
	// Version and MinimumVersion are negotiated on /meta/handshake
	Version        string `json:"version,omitempty"`
	MinimumVersion string `json:"minimumVersion,omitempty"`
	// SupportedConnectionTypes lists the transports offered in a handshake
	SupportedConnectionTypes []string `json:"supportedConnectionTypes,omitempty"`
	// ConnectionType names the transport a /meta/connect is sent over
	ConnectionType string `json:"connectionType,omitempty"`
	// Subscription is the single channel pattern of a /meta/subscribe or
	// /meta/unsubscribe request and its reply
	Subscription Channel `json:"subscription,omitempty"`
	// Data is the published payload, kept as raw JSON
	Data json.RawMessage `json:"data,omitempty"`
	// Ext carries extension values. It is kept encoded so any JSON value
	// survives untouched; see GetExt and SetExtField.
	Ext json.RawMessage `json:"ext,omitempty"`
	// Advice is the server's reconnect policy
	Advice *Advice `json:"advice,omitempty"`
	// Timestamp uses the profile YYYY-MM-DDThh:mm:ss.ss
	Timestamp string `json:"timestamp,omitempty"`
	// Successful and Error are set on replies. Error has the form
	// "code:args:message", see ParseError.
	Successful     bool   `json:"successful,omitempty"`
	AuthSuccessful bool   `json:"authSuccessful,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TimestampAsTime parses Timestamp
func (m *Message) TimestampAsTime() (time.Time, error) {
	return time.Parse(timestampFmt, m.Timestamp)
}

// ParseError splits Error into its code, arguments and message.
//
// See also: https://docs.cometd.org/current/reference/#_error
func (m *Message) ParseError() (MessageError, error) {
	pieces := strings.SplitN(m.Error, ":", 3)
	if len(pieces) != 3 {
		return MessageError{}, ErrMessageUnparsable(m.Error)
	}
	errorCode, err := strconv.Atoi(pieces[0])
	if err != nil {
		return MessageError{}, err
	}
	return MessageError{
		errorCode,
		strings.Split(pieces[1], ","),
		pieces[2],
	}, nil
}

// GetExt decodes the Ext field as a JSON object. If passed `true` it returns
// an empty map when Ext is unset, otherwise it returns nil. An Ext holding
// something other than an object is reported as an error.
func (m *Message) GetExt(create bool) (map[string]interface{}, error) {
	if len(m.Ext) == 0 || string(m.Ext) == "null" {
		if create {
			return make(map[string]interface{}), nil
		}
		return nil, nil
	}
	ext := make(map[string]interface{})
	if err := sjson.Unmarshal(m.Ext, &ext); err != nil {
		return nil, err
	}
	return ext, nil
}

// SetExtField stores value under key in the Ext object, creating the object
// when Ext is unset.
func (m *Message) SetExtField(key string, value interface{}) error {
	ext, err := m.GetExt(true)
	if err != nil {
		return err
	}
	ext[key] = value
	encoded, err := sjson.Marshal(ext)
	if err != nil {
		return err
	}
	m.Ext = encoded
	return nil
}

// HasData reports whether the message carries a data payload.
func (m *Message) HasData() bool {
	return len(m.Data) > 0 && string(m.Data) != "null"
}

// Advice tells the client how to keep its /meta/connect cycle going.
// Durations are in milliseconds.
//
// See also: https://docs.cometd.org/current/reference/#_bayeux_advice
type Advice struct {
	// Reconnect is "retry", "handshake" or "none"
	Reconnect string `json:"reconnect,omitempty"`
	// Timeout is how long the server may hold a /meta/connect open
	Timeout int `json:"timeout,omitempty"`
	// Interval is how long to wait before the next /meta/connect
	Interval        int      `json:"interval,omitempty"`
	MultipleClients bool     `json:"multiple-clients,omitempty"`
	Hosts           []string `json:"hosts,omitempty"`
}

// MustNotRetryOrHandshake indicates whether neither a handshake or retry is
// allowed
func (a Advice) MustNotRetryOrHandshake() bool {
	return a.Reconnect == "none"
}

// ShouldRetry indicates whether a retry should occur
func (a Advice) ShouldRetry() bool {
	return a.Reconnect == "retry"
}

// ShouldHandshake indicates whether the advice is that a handshake should
// occur
func (a Advice) ShouldHandshake() bool {
	return a.Reconnect == "handshake"
}

// TimeoutAsDuration returns the Timeout field as a time.Duration for
// scheduling
func (a Advice) TimeoutAsDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Millisecond
}

// IntervalAsDuration returns the Interval field as a time.Duration
func (a Advice) IntervalAsDuration() time.Duration {
	return time.Duration(a.Interval) * time.Millisecond
}

// MessageError represents a parsed Error field of a Message
//
// See also: https://docs.cometd.org/current/reference/#_error
type MessageError struct {
	ErrorCode    int
	ErrorArgs    []string
	ErrorMessage string
}

const (
	// ConnectionTypeLongPolling is a constant for the long-polling string
	ConnectionTypeLongPolling string = "long-polling"
	// ConnectionTypeCallbackPolling is a constant for the callback-polling string
	ConnectionTypeCallbackPolling = "callback-polling"
	// ConnectionTypeIFrame is a constant for the iframe string
	ConnectionTypeIFrame = "iframe"
	// ConnectionTypeWebSocket is a constant for the websocket string
	ConnectionTypeWebSocket = "websocket"
)
