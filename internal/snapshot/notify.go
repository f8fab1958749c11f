package snapshot

type subCh = chan string // carries new ETags

// Subscribe registers a listener for published generations and returns its
// channel and an unsubscribe func. The channel holds at most one pending
// ETag: a listener that falls behind sees only the most recent one.
func (s *Store) Subscribe() (<-chan string, func()) {
	ch := make(subCh, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	unsub := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, unsub
}

// publishUpdate hands etag to every listener without blocking, replacing a
// pending ETag the listener has not read yet.
func (s *Store) publishUpdate(etag string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- etag:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- etag:
		default:
		}
	}
}
