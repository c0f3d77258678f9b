package account

import "sync"

// keyedLocks is a lazily grown arena of per-username RW mutexes. An entry is
// created on first use and never removed for the process lifetime; the
// username space on a single host is small enough that this never matters.
type keyedLocks struct {
	m sync.Map
}

func (k *keyedLocks) of(key string) *sync.RWMutex {
	v, _ := k.m.LoadOrStore(key, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}
