package gofayetest

import "github.com/sigmavirus24/gofaye"

// ServerOpts configures how a Server misbehaves
type ServerOpts interface {
	apply(s *Server)
}

type serverOptFn func(s *Server)

func (opt serverOptFn) apply(s *Server) {
	opt(s)
}

// WithHandshakeError answers every handshake with HTTP 400
func WithHandshakeError(handshakeError bool) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.handshakeError = handshakeError
	})
}

// WithHandshakeDenied answers every handshake with successful:false
func WithHandshakeDenied(denied bool) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.handshakeDenied = denied
	})
}

// WithSilentHandshake never answers handshakes
func WithSilentHandshake(silent bool) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.silentHandshake = silent
	})
}

// WithSubscribeRejection denies subscriptions to the given channels
func WithSubscribeRejection(channels ...string) ServerOpts {
	return serverOptFn(func(s *Server) {
		for _, ch := range channels {
			s.rejectedChannels[gofaye.Channel(ch)] = true
		}
	})
}

// WithAdvice replaces the advice sent with handshake and connect replies
func WithAdvice(advice gofaye.Advice) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.advice = advice
	})
}
