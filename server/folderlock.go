package server

import "sync"

// folderLocks serializes packaging per folder id. Entries live only while
// someone holds or waits for them.
type folderLocks struct {
	mu    sync.Mutex
	locks map[string]*folderLock
}

type folderLock struct {
	sync.Mutex
	refs int
}

func newFolderLocks() *folderLocks {
	return &folderLocks{locks: make(map[string]*folderLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (f *folderLocks) lock(id string) func() {
	f.mu.Lock()
	l, ok := f.locks[id]
	if !ok {
		l = &folderLock{}
		f.locks[id] = l
	}
	l.refs++
	f.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		f.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(f.locks, id)
		}
		f.mu.Unlock()
	}
}

func (f *folderLocks) held() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locks)
}
