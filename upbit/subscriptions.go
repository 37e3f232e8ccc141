package upbit

import (
	"sort"
	"sync"
)

// subscriptions tracks, per channel, the set of symbols a caller has ever
// asked to watch. Subscribe requests always carry the complete current set
// because a new subscribe message replaces the server-side interest list for
// the client's ticket rather than appending to it.
type subscriptions struct {
	mu       sync.Mutex
	interest map[Channel]map[string]struct{}
	all      map[Channel]bool
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		interest: make(map[Channel]map[string]struct{}),
		all:      make(map[Channel]bool),
	}
}

// Register folds symbols into the channel's interest set and returns the full
// current set, sorted for deterministic request payloads. Registering the same
// symbol twice is a no-op.
func (s *subscriptions) Register(ch Channel, symbols ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.interest[ch]
	if !ok {
		set = make(map[string]struct{})
		s.interest[ch] = set
	}
	for _, sym := range symbols {
		set[sym] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// RegisterAll marks the channel as watching every market. Once set, subscribe
// requests for the channel omit the code list entirely.
func (s *subscriptions) RegisterAll(ch Channel) {
	s.mu.Lock()
	s.all[ch] = true
	s.mu.Unlock()
}

// AllMarkets reports whether the channel has an unfiltered watcher.
func (s *subscriptions) AllMarkets(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all[ch]
}
