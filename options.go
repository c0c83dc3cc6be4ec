package gofaye

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is used for the connect watchdog and transport requests
// when no timeout is configured
const DefaultTimeout = 30 * time.Second

// Options stores the available configuration options for a Session
type Options struct {
	Logger           Logger
	Timeout          time.Duration
	MessageExt       interface{}
	Client           *http.Client
	Transport        http.RoundTripper
	Dialer           *websocket.Dialer
	Header           http.Header
	Registerer       prometheus.Registerer
	MetricsNamespace string
	SocketDialer     SocketDialer
	PollerDialer     PollerDialer
	Extensions       []MessageExtender
}

// Option is a function that modifies the Options struct
type Option func(*Options)

// WithLogger returns an Option with logrus.FieldLogger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(options *Options) {
		options.Logger = &logrusLogger{logger}
	}
}

// WithSlogLogger returns an Option with an *slog.Logger
func WithSlogLogger(logger *slog.Logger) Option {
	return func(options *Options) {
		options.Logger = &slogLogger{logger}
	}
}

// WithTimeout sets how long a socket connection attempt may take before
// ConnectTimeout is raised, and the request timeouts of the long-polling
// transport. A zero or negative timeout disables the watchdog.
func WithTimeout(d time.Duration) Option {
	return func(options *Options) {
		options.Timeout = d
	}
}

// WithMessageExt sets the initial extension payload attached to every
// outgoing message. It must encode to JSON.
func WithMessageExt(ext interface{}) Option {
	return func(options *Options) {
		options.MessageExt = ext
	}
}

// WithHTTPClient provides a way to specify the HTTP client used by the
// long-polling transport
func WithHTTPClient(client *http.Client) Option {
	return func(options *Options) {
		options.Client = client
	}
}

// WithHTTPTransport sets the round tripper of the HTTP client created for
// the long-polling transport. It is ignored when WithHTTPClient is used.
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(options *Options) {
		options.Transport = transport
	}
}

// WithDialer sets the websocket dialer used for ws:// and wss:// URIs
func WithDialer(dialer *websocket.Dialer) Option {
	return func(options *Options) {
		options.Dialer = dialer
	}
}

// WithRequestHeader adds a header to the websocket upgrade request and to
// every long-polling request
func WithRequestHeader(key, value string) Option {
	return func(options *Options) {
		if options.Header == nil {
			options.Header = make(http.Header)
		}
		options.Header.Add(key, value)
	}
}

// WithMetrics registers the session's collectors with registry
func WithMetrics(registry prometheus.Registerer) Option {
	return func(options *Options) {
		options.Registerer = registry
	}
}

// WithMetricsNamespace overrides the "gofaye" metrics namespace
func WithMetricsNamespace(namespace string) Option {
	return func(options *Options) {
		options.MetricsNamespace = namespace
	}
}

// WithSocketDialer replaces the websocket implementation
func WithSocketDialer(dialer SocketDialer) Option {
	return func(options *Options) {
		options.SocketDialer = dialer
	}
}

// WithPollerDialer replaces the long-polling implementation
func WithPollerDialer(dialer PollerDialer) Option {
	return func(options *Options) {
		options.PollerDialer = dialer
	}
}

// WithExtension registers a MessageExtender when the session is created
func WithExtension(ext MessageExtender) Option {
	return func(options *Options) {
		options.Extensions = append(options.Extensions, ext)
	}
}
