package gofaye

import "sync/atomic"

var pollingPolicy = transportPolicy{
	connectionType:     ConnectionTypeLongPolling,
	handshakeOnConnect: true,
}

// pollingLink binds one LongPoller to the session. The poller owns request
// timeouts and the long-poll loop; the link only translates messages into
// poller calls.
type pollingLink struct {
	poller   LongPoller
	disposed atomic.Bool
}

func dialPoller(s *Session, uri, attempt string) (link, error) {
	poller, err := s.pollerDialer(uri, s.connectExt, PollerHandlers{
		Connected: func() {
			if s.isCurrent(attempt) {
				s.emitConnected()
			}
		},
		ConnectionFailed: func(err error) {
			s.pollFailed(attempt, err)
		},
		Disconnected: func() {
			s.transportLost(attempt)
		},
		ResponseReceived: func(raw string) {
			s.receive(attempt, raw)
		},
	})
	if err != nil {
		return nil, err
	}
	timeout := s.Timeout()
	poller.SetTimeout(timeout)
	poller.SetLongPollingTimeout(timeout)
	return &pollingLink{poller: poller}, nil
}

func (l *pollingLink) open() {
}

func (l *pollingLink) live() bool {
	return !l.disposed.Load()
}

func (l *pollingLink) send(m Message) error {
	switch m.Channel {
	case MetaHandshake:
		var connectionType string
		if len(m.SupportedConnectionTypes) > 0 {
			connectionType = m.SupportedConnectionTypes[0]
		}
		return l.poller.Handshake(connectionType, m.Ext, encodeAdvice(m.Advice), true)
	case MetaConnect:
		return l.poller.Connect()
	case MetaSubscribe:
		return l.poller.Subscribe(m.Ext, string(m.Subscription), true)
	case MetaUnsubscribe:
		return l.poller.Unsubscribe(m.Ext, string(m.Subscription), true)
	case MetaDisconnect:
		return l.poller.Disconnect()
	default:
		return l.poller.Publish(m.Data, m.Ext, string(m.Channel), encodeAdvice(m.Advice), true)
	}
}

func (l *pollingLink) startLongPolling() {
	l.poller.StartLongPolling()
}

func (l *pollingLink) close() error {
	if l.disposed.Swap(true) {
		return nil
	}
	return l.poller.Dispose()
}

// pollFailed is raised by the poller when a request could not complete.
// The poller owns the timeout, so a failure is what the session reports
// as a connect timeout.
func (s *Session) pollFailed(attempt string, err error) {
	if !s.isCurrent(attempt) {
		return
	}
	s.logger.WithField("at", "poll-failed").WithField("attempt", attempt).WithError(err).Warn("long-polling request failed")
	s.raiseError(ErrorEvent{
		Level: Severe,
		Data:  map[string]interface{}{"type": "transport", "error": err.Error()},
		Err:   err,
	})
	s.metrics.incConnectTimeout()
	s.emitConnectTimeout()
}
