package storage

import "sync"

// Overlay stages writes and deletes on top of a base Database. Nothing touches
// the base until Commit; Discard throws the staged changes away. The settlement
// core runs every invocation inside one overlay so that a failing invocation
// leaves no partial writes behind.
type Overlay struct {
	mu      sync.Mutex
	base    Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay creates an empty overlay over base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.deletes, string(key))
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	if value, ok := o.writes[string(key)]; ok {
		o.mu.Unlock()
		return append([]byte(nil), value...), nil
	}
	if _, ok := o.deletes[string(key)]; ok {
		o.mu.Unlock()
		return nil, nil
	}
	o.mu.Unlock()
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

// Commit applies every staged write and delete to the base database and resets
// the overlay. The base is expected to be exclusively owned by the caller for
// the duration of the invocation, so a half-applied commit can only be caused
// by the base itself failing.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	for key := range o.deletes {
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops all staged changes.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Close satisfies the Database interface. The base stays open; overlays are
// per-invocation and own nothing.
func (o *Overlay) Close() {}
