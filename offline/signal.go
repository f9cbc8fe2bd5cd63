package offline

import "sync"

// Signal is a boolean online/offline event source the queue subscribes
// to. The platform decides what "online" means (OS network change
// notifications, a connectivity probe, a manual toggle).
type Signal interface {
	// Online reports the current connectivity state.
	Online() bool
	// Subscribe returns a channel receiving state changes. The channel
	// is never closed by the signal.
	Subscribe() <-chan bool
}

// ManualSignal is a Signal driven by explicit Set calls.
type ManualSignal struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewManualSignal creates a signal with the given initial state.
func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{online: online}
}

// Online reports the current state.
func (s *ManualSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set updates the state and notifies subscribers on change.
// Notification never blocks; a subscriber that stopped receiving just
// misses intermediate transitions.
func (s *ManualSignal) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online == online {
		return
	}
	s.online = online

	for _, ch := range s.subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe registers a new state-change channel.
func (s *ManualSignal) Subscribe() <-chan bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan bool, 8)
	s.subs = append(s.subs, ch)
	return ch
}

var _ Signal = (*ManualSignal)(nil)
