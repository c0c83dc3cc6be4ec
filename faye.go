package gofaye

import (
	"net/url"
	"strings"
)

// NewSession creates a Session for uri. http and https URIs use the
// long-polling transport, ws and wss URIs the websocket transport. Any
// other scheme is an UnsupportedSchemeError; nothing is dialed until
// Connect.
func NewSession(uri string, opts ...Option) (*Session, error) {
	policy, dial, err := transportFor(uri)
	if err != nil {
		return nil, err
	}

	options := &Options{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = newNullLogger()
	}
	m, err := newMetrics(options.Registerer, options.MetricsNamespace)
	if err != nil {
		return nil, err
	}
	ext, err := encodeJSON(options.MessageExt)
	if err != nil {
		return nil, err
	}

	socketDialer := options.SocketDialer
	if socketDialer == nil {
		socketDialer = newSocketDialer(options.Dialer, options.Header)
	}
	pollerDialer := options.PollerDialer
	if pollerDialer == nil {
		pollerDialer = newPollerDialer(options.Client, options.Transport, options.Header)
	}

	s := &Session{
		Listeners:    newListeners(),
		uri:          uri,
		ext:          ext,
		timeout:      options.Timeout,
		policy:       policy,
		dial:         dial,
		socketDialer: socketDialer,
		pollerDialer: pollerDialer,
		subs:         newSubscriptionSet(),
		csm:          NewConnectionStateMachine(),
		logger:       logger.WithField("transport", policy.connectionType),
		metrics:      m,
	}
	for _, e := range options.Extensions {
		if err := s.UseExtension(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func transportFor(uri string) (transportPolicy, func(*Session, string, string) (link, error), error) {
	u, err := url.Parse(uri)
	if err != nil {
		return transportPolicy{}, nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return pollingPolicy, dialPoller, nil
	case "ws", "wss":
		return socketPolicy, dialSocket, nil
	}
	return transportPolicy{}, nil, UnsupportedSchemeError{u.Scheme}
}

func schemeOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Scheme
}
