package relay

import "sync"

// channelSerializer hands out per-source-channel tokens so ingress events
// from one channel are processed strictly in arrival order. Entries are
// reference-counted and removed when idle; no global lock is held while an
// event runs.
type channelSerializer struct {
	mu    sync.Mutex
	locks map[string]*serialToken
}

type serialToken struct {
	mu   sync.Mutex
	refs int
}

func newChannelSerializer() *channelSerializer {
	return &channelSerializer{locks: make(map[string]*serialToken)}
}

// acquire blocks until the channel's token is free and returns the release
// function.
func (s *channelSerializer) acquire(channelID string) func() {
	s.mu.Lock()
	tok, ok := s.locks[channelID]
	if !ok {
		tok = &serialToken{}
		s.locks[channelID] = tok
	}
	tok.refs++
	s.mu.Unlock()

	tok.mu.Lock()

	return func() {
		tok.mu.Unlock()
		s.mu.Lock()
		tok.refs--
		if tok.refs == 0 {
			delete(s.locks, channelID)
		}
		s.mu.Unlock()
	}
}
