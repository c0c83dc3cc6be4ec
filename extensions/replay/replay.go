// Package replay implements a message extension that lets a session resume
// channels from the last event it saw. The server announces support in the
// handshake reply; once it has, every subscribe carries the replay ids
// recorded so far.
package replay

import (
	"sync"
	"sync/atomic"

	"github.com/segmentio/encoding/json"

	"github.com/sigmavirus24/gofaye"
)

const (
	// ExtensionName is the key the extension uses inside ext
	ExtensionName string = "replay"
	eventKey      string = "event"
	replayIDKey   string = "replayId"
)

// IDStorer stores the last replay id seen on each channel
type IDStorer interface {
	Set(channel string, replayID int)
	Get(channel string) (int, bool)
	Delete(channel string)
	AsMap() map[string]int
}

// Extension tracks replay ids for the channels a session receives on
type Extension struct {
	supportedByServer atomic.Bool
	lock              sync.RWMutex
	store             IDStorer
}

// New creates an Extension backed by store. A nil store means an empty
// MapStorage.
func New(store IDStorer) *Extension {
	if store == nil {
		store = NewMapStorage()
	}
	return &Extension{store: store}
}

// Store is the IDStorer the extension records into
func (e *Extension) Store() IDStorer {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.store
}

// Supported reports whether the server acknowledged the extension
func (e *Extension) Supported() bool {
	return e.supportedByServer.Load()
}

// Outgoing announces the extension on handshakes and attaches the replay
// ids to subscribes once the server supports it
func (e *Extension) Outgoing(m *gofaye.Message) {
	switch m.Channel {
	case gofaye.MetaHandshake:
		_ = m.SetExtField(ExtensionName, true)
	case gofaye.MetaSubscribe:
		store := e.Store()
		if e.Supported() && store != nil {
			_ = m.SetExtField(ExtensionName, store.AsMap())
		}
	}
}

// Incoming records support from the handshake reply, forgets channels that
// were unsubscribed, and remembers the replay id of each delivered event.
func (e *Extension) Incoming(m *gofaye.Message) {
	store := e.Store()
	if store == nil {
		return
	}
	switch m.Channel.Type() {
	case gofaye.MetaChannel:
		switch m.Channel {
		case gofaye.MetaHandshake:
			ext, err := m.GetExt(false)
			if err != nil || ext == nil {
				return
			}
			if ok, _ := ext[ExtensionName].(bool); ok {
				e.supportedByServer.Store(true)
			}
		case gofaye.MetaUnsubscribe:
			if m.Successful {
				store.Delete(string(m.Subscription))
			}
		}
	case gofaye.BroadcastChannel:
		if id, ok := replayID(m); ok {
			store.Set(string(m.Channel), id)
		}
	}
}

// Registered is called once the session accepted the extension
func (e *Extension) Registered(extensionName string, session *gofaye.Session) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.store == nil {
		e.store = NewMapStorage()
	}
}

// Unregistered drops the recorded ids
func (e *Extension) Unregistered() {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.store = nil
	e.supportedByServer.Store(false)
}

func replayID(m *gofaye.Message) (int, bool) {
	if !m.HasData() {
		return 0, false
	}
	var payload struct {
		Event struct {
			ReplayID *float64 `json:"replayId"`
		} `json:"event"`
	}
	if err := json.Unmarshal(m.Data, &payload); err != nil || payload.Event.ReplayID == nil {
		return 0, false
	}
	return int(*payload.Event.ReplayID), true
}

// MapStorage implements IDStorer over a map guarded by a RWMutex
type MapStorage struct {
	store map[string]int
	lock  sync.RWMutex
}

// NewMapStorage creates an empty MapStorage
func NewMapStorage() *MapStorage {
	return &MapStorage{store: make(map[string]int)}
}

// Set implements the IDStorer interface
func (s *MapStorage) Set(channel string, replayID int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.store[channel] = replayID
}

// Get implements the IDStorer interface
func (s *MapStorage) Get(channel string) (replayID int, ok bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	replayID, ok = s.store[channel]
	return
}

// Delete implements the IDStorer interface
func (s *MapStorage) Delete(channel string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.store, channel)
}

// AsMap implements the IDStorer interface
func (s *MapStorage) AsMap() map[string]int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	replay := make(map[string]int, len(s.store))
	for k, v := range s.store {
		replay[k] = v
	}
	return replay
}
