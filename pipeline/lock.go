package pipeline

import "sync"

// keyedMutex serializes work per dataset id. Entries exist only while held.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[string]chan struct{})}
}

// TryLock acquires id without waiting. The returned func releases it.
func (k *keyedMutex) TryLock(id string) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.held[id]; busy {
		return nil, false
	}
	ch := make(chan struct{})
	k.held[id] = ch
	return k.releaser(id, ch), true
}

// Lock acquires id, waiting for the current holder to release it
func (k *keyedMutex) Lock(id string) func() {
	for {
		k.mu.Lock()
		ch, busy := k.held[id]
		if !busy {
			ch = make(chan struct{})
			k.held[id] = ch
			k.mu.Unlock()
			return k.releaser(id, ch)
		}
		k.mu.Unlock()
		<-ch
	}
}

func (k *keyedMutex) releaser(id string, ch chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, id)
			k.mu.Unlock()
			close(ch)
		})
	}
}

// Held reports whether id is currently locked
func (k *keyedMutex) Held(id string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, busy := k.held[id]
	return busy
}
