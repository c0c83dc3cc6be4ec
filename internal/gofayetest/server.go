// Package gofayetest provides an in-process Bayeux server for tests. It
// answers long-polling requests as an http.RoundTripper and websocket
// connections as an http.Handler.
package gofayetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"

	"github.com/sigmavirus24/gofaye"
)

// Version is the protocol version the server answers denied handshakes with
const Version = "1.0"

var (
	defaultAdvice = gofaye.Advice{
		Reconnect: "retry",
		Timeout:   1000,
		Interval:  100,
	}

	errNotRunning   = errors.New("server not running")
	errBadHandshake = errors.New("handshake rejected with 400")
)

// Logger is satisfied by *testing.T
type Logger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

type socketClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *socketClient) write(ms []gofaye.Message) error {
	payload, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Server is a single-node Bayeux server holding every client in memory
type Server struct {
	log      Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	running  bool
	subs     map[string][]gofaye.Channel
	pending  map[string][]gofaye.Message
	sockets  map[string]*socketClient
	requests []gofaye.Message

	advice           gofaye.Advice
	handshakeError   bool
	handshakeDenied  bool
	silentHandshake  bool
	rejectedChannels map[gofaye.Channel]bool
}

// NewServer creates a stopped Server
func NewServer(logger Logger, opts ...ServerOpts) *Server {
	s := &Server{
		log:              logger,
		subs:             make(map[string][]gofaye.Channel),
		pending:          make(map[string][]gofaye.Message),
		sockets:          make(map[string]*socketClient),
		advice:           defaultAdvice,
		rejectedChannels: make(map[gofaye.Channel]bool),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Start makes the server answer requests
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop refuses further requests and closes every websocket
func (s *Server) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	for id, client := range s.sockets {
		_ = client.conn.Close()
		delete(s.sockets, id)
	}
	return nil
}

// Requests returns every message received so far, in arrival order
func (s *Server) Requests() []gofaye.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gofaye.Message(nil), s.requests...)
}

// RequestsOn returns the received messages sent to channel
func (s *Server) RequestsOn(channel gofaye.Channel) []gofaye.Message {
	var ms []gofaye.Message
	for _, m := range s.Requests() {
		if m.Channel == channel {
			ms = append(ms, m)
		}
	}
	return ms
}

// Publish delivers data on channel to every client subscribed to it.
// Websocket clients get it immediately, long-polling clients with their
// next /meta/connect.
func (s *Server) Publish(channel string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliver(gofaye.Message{Channel: gofaye.Channel(channel), Data: payload})
	return nil
}

func response(req *http.Request, status int, body []byte) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}
	if status == http.StatusOK {
		resp.Header.Set("Content-Type", "application/json")
	}
	return resp
}

// RoundTrip answers one long-polling batch
func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if closeErr := req.Body.Close(); closeErr != nil {
		s.log.Logf("closing request body: %+v", closeErr)
	}
	if err != nil {
		return nil, fmt.Errorf("reading request body (%w)", err)
	}

	var batch []gofaye.Message
	if err := json.Unmarshal(body, &batch); err != nil {
		return response(req, http.StatusUnprocessableEntity, nil), nil
	}

	replies, err := s.handle(batch, nil)
	switch {
	case errors.Is(err, errBadHandshake):
		return response(req, http.StatusBadRequest, []byte(`{"error":"Invalid request"}`)), nil
	case err != nil:
		return nil, err
	}
	if replies == nil {
		replies = []gofaye.Message{}
	}
	payload, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("encoding replies (%w)", err)
	}
	return response(req, http.StatusOK, payload), nil
}

// ServeHTTP upgrades the request to a websocket and answers each frame
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		http.Error(w, errNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Logf("upgrading connection: %+v", err)
		return
	}
	client := &socketClient{conn: conn}
	defer s.forget(client)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var batch []gofaye.Message
		if err := json.Unmarshal(frame, &batch); err != nil {
			s.log.Logf("unparsable frame: %s", frame)
			continue
		}
		replies, err := s.handle(batch, client)
		if err != nil {
			s.log.Logf("handling frame: %+v", err)
			return
		}
		if len(replies) > 0 {
			if err := client.write(replies); err != nil {
				return
			}
		}
	}
}

func (s *Server) forget(client *socketClient) {
	s.mu.Lock()
	for id, c := range s.sockets {
		if c == client {
			delete(s.sockets, id)
		}
	}
	s.mu.Unlock()
	_ = client.conn.Close()
}

func (s *Server) handle(batch []gofaye.Message, client *socketClient) ([]gofaye.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, errNotRunning
	}
	s.requests = append(s.requests, batch...)

	var replies []gofaye.Message
	for _, msg := range batch {
		var reply *gofaye.Message
		switch msg.Channel {
		case gofaye.MetaHandshake:
			if s.handshakeError {
				return nil, errBadHandshake
			}
			reply = s.handshake(msg, client)
		case gofaye.MetaConnect:
			replies = append(replies, s.pending[msg.ClientID]...)
			delete(s.pending, msg.ClientID)
			reply = s.ack(msg)
			reply.Advice = s.adviceCopy()
		case gofaye.MetaSubscribe:
			reply = s.subscribe(msg)
		case gofaye.MetaUnsubscribe:
			reply = s.unsubscribe(msg)
		case gofaye.MetaDisconnect:
			delete(s.subs, msg.ClientID)
			delete(s.pending, msg.ClientID)
			delete(s.sockets, msg.ClientID)
			reply = s.ack(msg)
		default:
			if msg.Channel.Type() == gofaye.MetaChannel {
				s.log.Logf("unhandled: %+v", msg)
				continue
			}
			reply = s.ack(msg)
			s.deliver(gofaye.Message{Channel: msg.Channel, Data: msg.Data})
		}
		if reply != nil {
			replies = append(replies, *reply)
		}
	}
	return replies, nil
}

func (s *Server) adviceCopy() *gofaye.Advice {
	advice := s.advice
	return &advice
}

func (s *Server) ack(msg gofaye.Message) *gofaye.Message {
	return &gofaye.Message{
		Channel:      msg.Channel,
		ID:           msg.ID,
		ClientID:     msg.ClientID,
		Subscription: msg.Subscription,
		Successful:   true,
	}
}

func (s *Server) handshake(msg gofaye.Message, client *socketClient) *gofaye.Message {
	switch {
	case s.silentHandshake:
		return nil
	case s.handshakeDenied:
		return &gofaye.Message{
			Channel: gofaye.MetaHandshake,
			ID:      msg.ID,
			Version: Version,
			Error:   "403::Handshake denied",
		}
	}
	clientID := uuid.NewString()
	if client != nil {
		s.sockets[clientID] = client
	}
	return &gofaye.Message{
		Channel:                  gofaye.MetaHandshake,
		ID:                       msg.ID,
		ClientID:                 clientID,
		Version:                  msg.Version,
		SupportedConnectionTypes: msg.SupportedConnectionTypes,
		Successful:               true,
		AuthSuccessful:           true,
		Advice:                   s.adviceCopy(),
	}
}

func (s *Server) subscribe(msg gofaye.Message) *gofaye.Message {
	reply := s.ack(msg)
	switch {
	case s.rejectedChannels[msg.Subscription]:
		reply.Successful = false
		reply.Error = fmt.Sprintf("403:%s:subscription denied", msg.Subscription)
	case s.subscribed(msg.ClientID, msg.Subscription):
		reply.Successful = false
		reply.Error = fmt.Sprintf("403:%s:already subscribed", msg.Subscription)
	default:
		s.subs[msg.ClientID] = append(s.subs[msg.ClientID], msg.Subscription)
	}
	return reply
}

func (s *Server) unsubscribe(msg gofaye.Message) *gofaye.Message {
	reply := s.ack(msg)
	kept := s.subs[msg.ClientID][:0]
	for _, ch := range s.subs[msg.ClientID] {
		if ch != msg.Subscription {
			kept = append(kept, ch)
		}
	}
	if len(kept) == len(s.subs[msg.ClientID]) {
		reply.Successful = false
		reply.Error = fmt.Sprintf("403:%s:not subscribed", msg.Subscription)
	}
	s.subs[msg.ClientID] = kept
	return reply
}

func (s *Server) subscribed(clientID string, channel gofaye.Channel) bool {
	for _, ch := range s.subs[clientID] {
		if ch == channel {
			return true
		}
	}
	return false
}

// deliver must be called with s.mu held
func (s *Server) deliver(m gofaye.Message) {
	for clientID, channels := range s.subs {
		if !matchesAny(channels, m.Channel) {
			continue
		}
		delivery := m
		delivery.ID = uuid.NewString()
		if client, ok := s.sockets[clientID]; ok {
			if err := client.write([]gofaye.Message{delivery}); err != nil {
				s.log.Logf("delivering to %s: %+v", clientID, err)
			}
			continue
		}
		s.pending[clientID] = append(s.pending[clientID], delivery)
	}
}

func matchesAny(patterns []gofaye.Channel, channel gofaye.Channel) bool {
	for _, p := range patterns {
		if p.Match(channel) {
			return true
		}
	}
	return false
}
