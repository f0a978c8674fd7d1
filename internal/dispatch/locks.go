package dispatch

import "sync"

type pairKey struct {
	chatID int64
	userID int64
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// pairLocks serializes work per (chat, user) pair. Different pairs never
// contend. Entries are reference-counted and removed once the last holder
// releases, so the map stays bounded by the number of in-flight pairs.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*pairLock
}

func newPairLocks() pairLocks {
	return pairLocks{locks: make(map[pairKey]*pairLock)}
}

func (p *pairLocks) lock(chatID, userID int64) func() {
	key := pairKey{chatID: chatID, userID: userID}
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}
