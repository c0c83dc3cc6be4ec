package gofaye

import (
	"github.com/segmentio/encoding/json"
)

var socketPolicy = transportPolicy{
	connectionType:         ConnectionTypeWebSocket,
	watchConnectTimeout:    true,
	rearmOnConnectResponse: true,
}

// socketLink binds one Socket to the session. Every callback carries the
// attempt the socket was dialed for so a replaced socket cannot touch the
// session any more.
type socketLink struct {
	socket Socket
}

func dialSocket(s *Session, uri, attempt string) (link, error) {
	socket, err := s.socketDialer(uri, SocketHandlers{
		Opened: func() {
			s.socketOpened(attempt)
		},
		Closed: func() {
			s.transportLost(attempt)
		},
		Error: func(err error) {
			s.transportError(attempt, err)
		},
		MessageReceived: func(raw string) {
			s.receive(attempt, raw)
		},
	})
	if err != nil {
		return nil, err
	}
	return &socketLink{socket: socket}, nil
}

func (l *socketLink) open() {
	l.socket.Open()
}

func (l *socketLink) live() bool {
	return l.socket.State() == SocketOpen
}

func (l *socketLink) send(m Message) error {
	payload, err := json.Marshal([]Message{m})
	if err != nil {
		return err
	}
	return l.socket.Send(string(payload))
}

func (l *socketLink) startLongPolling() {
}

func (l *socketLink) close() error {
	return l.socket.Close()
}

// socketOpened sends the handshake for a freshly opened socket and then
// reports the session as connected.
func (s *Session) socketOpened(attempt string) {
	if !s.isCurrent(attempt) {
		return
	}
	logger := s.logger.WithField("at", "socket-opened").WithField("attempt", attempt)
	if err := s.Handshake(); err != nil {
		logger.WithError(err).Warn("unable to send handshake")
		s.raiseError(ErrorEvent{
			Level: Severe,
			Data:  map[string]interface{}{"type": "handshake", "error": err.Error()},
			Err:   err,
		})
		return
	}
	logger.Debug("handshake sent")
	s.emitConnected()
}
