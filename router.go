package gofaye

import (
	"bytes"
	"time"

	"github.com/segmentio/encoding/json"
)

// ProcessMessage routes a single inbound message as if the live transport
// had delivered it.
func (s *Session) ProcessMessage(m Message) {
	var attempt string
	if st := s.current(); st != nil {
		attempt = st.attempt
	}
	s.processMessage(attempt, m)
}

// receive decodes a batch delivered by the transport of attempt and routes
// its messages in order
func (s *Session) receive(attempt, raw string) {
	if !s.isCurrent(attempt) {
		s.logger.WithField("at", "receive").WithField("attempt", attempt).Debug("dropping response for a replaced transport")
		return
	}
	batch, err := decodeBatch([]byte(raw))
	if err != nil {
		s.logger.WithField("at", "receive").WithError(err).Warn("unable to decode response")
		s.raiseError(ErrorEvent{
			Level: Severe,
			Data: map[string]interface{}{
				"type":  "transmission-content",
				"part":  "body",
				"error": err.Error(),
			},
			Err: err,
		})
		return
	}
	for _, m := range batch {
		s.processMessage(attempt, m)
	}
}

// decodeBatch accepts a JSON array of messages or a lone message object
func decodeBatch(raw []byte) ([]Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return []Message{m}, nil
	}
	var batch []Message
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Session) processMessage(attempt string, m Message) {
	s.lock.Lock()
	exts := append([]MessageExtender(nil), s.exts...)
	s.lock.Unlock()
	for _, e := range exts {
		e.Incoming(&m)
	}
	s.metrics.incReceived(m.Channel)

	segments := m.Channel.Segments()
	if len(segments) < 2 {
		s.raiseError(ErrorEvent{
			Level: Warning,
			Data: map[string]interface{}{
				"type":    "transmission-content",
				"part":    "channel",
				"error":   "less than two parts detected in channel path",
				"channel": string(m.Channel),
			},
		})
	}

	switch {
	case len(segments) >= 2 && segments[0] == "meta":
		switch segments[1] {
		case "handshake":
			s.handshakeResponse(attempt, m)
		case "connect":
			s.connectResponse(attempt, m)
		case "subscribe":
			s.subscribeResponse(m)
		case "unsubscribe":
			s.unsubscribeResponse(m)
		}
	case len(segments) >= 1 && segments[0] != "meta" && !m.HasData():
		s.emitMessage(publishResponse, m)
	}
	s.emitMessage(messageReceived, m)
}

func (s *Session) handshakeResponse(attempt string, m Message) {
	logger := s.logger.WithField("at", "handshake-response").WithField("attempt", attempt)
	if !m.Successful {
		logger.WithField("error", m.Error).Warn("handshake rejected")
		s.emitDisconnected()
		if st := s.detach(attempt); st != nil {
			s.release(st)
		}
		s.resetSubscriptions()
		s.raiseError(ErrorEvent{
			Level: Fatal,
			Data:  map[string]interface{}{"type": "handshake", "error": m.Error},
		})
		s.emitMessage(handshakeResponse, m)
		return
	}

	s.lock.Lock()
	st := s.state
	if st == nil || st.attempt != attempt {
		s.lock.Unlock()
		logger.Debug("no transport for handshake response")
		s.emitMessage(handshakeResponse, m)
		return
	}
	s.clientID = m.ClientID
	if st.watchdog != nil {
		st.watchdog.Stop()
	}
	s.lock.Unlock()

	if err := s.csm.ProcessEvent(successfullyConnected); err != nil {
		logger.WithError(err).Debug("unexpected handshake response")
	}
	logger.WithField("clientId", m.ClientID).Info("handshake acknowledged")
	if err := s.ConnectRequest(); err != nil {
		logger.WithError(err).Warn("unable to start connect loop")
		s.raiseError(ErrorEvent{
			Level: Severe,
			Data:  map[string]interface{}{"type": "connect", "error": err.Error()},
			Err:   err,
		})
	} else {
		st.link.startLongPolling()
	}
	s.emitMessage(handshakeResponse, m)
}

func (s *Session) connectResponse(attempt string, m Message) {
	s.emitMessage(connectResponse, m)
	if !s.policy.rearmOnConnectResponse {
		return
	}

	var advice Advice
	if m.Advice != nil {
		advice = *m.Advice
	}
	logger := s.logger.WithField("at", "connect-response").WithField("attempt", attempt)
	switch {
	case advice.MustNotRetryOrHandshake():
		logger.Info("server advised not to reconnect")
		return
	case advice.ShouldHandshake():
		logger.Info("server advised a new handshake")
		if err := s.Handshake(); err != nil {
			logger.WithError(err).Warn("unable to handshake again")
		}
		return
	}

	interval := advice.IntervalAsDuration()
	if interval <= 0 {
		s.rearm(attempt)
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if st := s.state; st != nil && st.attempt == attempt {
		if st.rearm != nil {
			st.rearm.Stop()
		}
		st.rearm = time.AfterFunc(interval, func() {
			s.rearm(attempt)
		})
	}
}

// rearm keeps a /meta/connect outstanding on the socket transport
func (s *Session) rearm(attempt string) {
	if !s.isCurrent(attempt) {
		return
	}
	if err := s.ConnectRequest(); err != nil {
		s.logger.WithField("at", "rearm").WithField("attempt", attempt).WithError(err).Debug("not re-arming connect")
	}
}

func (s *Session) subscribeResponse(m Message) {
	if m.Successful {
		if s.subs.Add(m.Subscription) {
			s.metrics.addSubscriptions(1)
		}
	} else {
		s.logger.WithField("at", "subscribe-response").WithField("subscription", string(m.Subscription)).WithField("error", m.Error).Info("subscription rejected")
		if s.subs.Remove(m.Subscription) {
			s.metrics.addSubscriptions(-1)
		}
	}
	s.emitMessage(subscribeResponse, m)
}

func (s *Session) unsubscribeResponse(m Message) {
	if s.subs.Remove(m.Subscription) {
		s.metrics.addSubscriptions(-1)
	}
	s.emitMessage(unsubscribeResponse, m)
}
