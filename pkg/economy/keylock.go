package economy

import "sync"

// keyedLocks serializes operations per ledger key. Two operations touching
// the same username never interleave; operations on distinct usernames
// proceed in parallel. Entries are never evicted: the key space is the set of
// usernames seen in one channel's chat, so the map stays small for the
// process lifetime.
type keyedLocks struct {
	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (keyed *keyedLocks) lockFor(key string) *sync.Mutex {
	keyed.mutex.Lock()
	defer keyed.mutex.Unlock()
	lock, exists := keyed.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		keyed.locks[key] = lock
	}
	return lock
}

// acquire locks a single key and returns the release function.
func (keyed *keyedLocks) acquire(key string) func() {
	lock := keyed.lockFor(key)
	lock.Lock()
	return lock.Unlock
}

// acquirePair locks two keys in lexicographic order so that concurrent
// transfers between the same pair of users cannot deadlock.
func (keyed *keyedLocks) acquirePair(first string, second string) func() {
	if second < first {
		first, second = second, first
	}
	firstLock := keyed.lockFor(first)
	secondLock := keyed.lockFor(second)
	firstLock.Lock()
	secondLock.Lock()
	return func() {
		secondLock.Unlock()
		firstLock.Unlock()
	}
}
