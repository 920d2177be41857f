package wallet

import (
	"sort"
	"sync"
)

// Locker serializes writers per wallet id inside one process.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns an empty keyed locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock acquires the locks for ids in ascending order and returns a function
// releasing them. Duplicate ids are locked once.
func (l *Locker) Lock(ids ...string) (unlock func()) {
	keys := uniqueSorted(ids)
	held := make([]*keyLock, 0, len(keys))
	for _, key := range keys {
		l.mu.Lock()
		kl, ok := l.locks[key]
		if !ok {
			kl = &keyLock{}
			l.locks[key] = kl
		}
		kl.refs++
		l.mu.Unlock()

		kl.mu.Lock()
		held = append(held, kl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func uniqueSorted(ids []string) []string {
	keys := append([]string(nil), ids...)
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if n := len(out); n > 0 && out[n-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}
