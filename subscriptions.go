package gofaye

import (
	"sync"
)

// subscriptionSet is the ordered, duplicate-free list of channel patterns
// the server has acknowledged for this session.
type subscriptionSet struct {
	lock sync.RWMutex
	subs []Channel
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{subs: make([]Channel, 0)}
}

// Add appends the pattern unless it is already present and reports whether
// it was added.
func (ss *subscriptionSet) Add(pattern Channel) bool {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	for _, s := range ss.subs {
		if s == pattern {
			return false
		}
	}
	ss.subs = append(ss.subs, pattern)
	return true
}

// Remove deletes the exact pattern and reports whether it was present.
func (ss *subscriptionSet) Remove(pattern Channel) bool {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	for i, s := range ss.subs {
		if s == pattern {
			ss.subs = append(ss.subs[:i], ss.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Matches reports whether any pattern in the set matches channel.
func (ss *subscriptionSet) Matches(channel Channel) bool {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	for _, s := range ss.subs {
		if s.Match(channel) {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the patterns in acknowledgement order.
func (ss *subscriptionSet) Snapshot() []Channel {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return append([]Channel(nil), ss.subs...)
}

func (ss *subscriptionSet) Len() int {
	ss.lock.RLock()
	defer ss.lock.RUnlock()
	return len(ss.subs)
}

// Reset empties the set and returns how many patterns it held.
func (ss *subscriptionSet) Reset() int {
	ss.lock.Lock()
	defer ss.lock.Unlock()
	n := len(ss.subs)
	ss.subs = make([]Channel, 0)
	return n
}
