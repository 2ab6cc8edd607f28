package labelstore

import (
	"sync"

	"github.com/gofrs/flock"
)

// pathLocks hands out one mutex per label file path so writers to different
// files never serialize on each other.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pathLocks) get(path string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[path] = lock
	}
	return lock
}

// lockFile guards path against other processes with an advisory lock on a
// sidecar file. The in-process mutex must already be held.
func lockFile(path string) (*flock.Flock, error) {
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, err
	}
	return fl, nil
}
