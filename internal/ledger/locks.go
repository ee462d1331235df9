package ledger

import "sync"

// itemLocks hands out one mutex per item id. Entries are dropped once nobody
// holds or waits on them, so the map only grows with in-flight items.
type itemLocks struct {
	mu      sync.Mutex
	entries map[string]*itemLock
}

type itemLock struct {
	mu   sync.Mutex
	refs int
}

func newItemLocks() *itemLocks {
	return &itemLocks{entries: make(map[string]*itemLock)}
}

// Lock blocks until the caller owns itemID and returns the release func.
func (l *itemLocks) Lock(itemID string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.entries[itemID]
	if !ok {
		entry = &itemLock{}
		l.entries[itemID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, itemID)
		}
		l.mu.Unlock()
	}
}

func (l *itemLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
