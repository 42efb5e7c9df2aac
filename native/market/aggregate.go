package market

import (
	"github.com/ethereum/go-ethereum/rlp"

	"groupbuy/core/state"
)

// AggregateTracker keeps each item's committed-quantity total in a one-slot
// collection under the item's dynamic namespace. Modeling the scalar as a
// collection keeps every durable region on the same primitive, and an empty
// slot cleanly encodes "this item no longer exists" as distinct from a
// legitimate zero.
type AggregateTracker struct {
	st *state.Manager
}

// NewAggregateTracker creates a tracker backed by the provided state manager.
func NewAggregateTracker(st *state.Manager) *AggregateTracker {
	return &AggregateTracker{st: st}
}

func (t *AggregateTracker) slot(category, url string) (*state.Collection, error) {
	ns, err := lookupCategory(category)
	if err != nil {
		return nil, err
	}
	return t.st.Collection(ns.aggregateNS(url)), nil
}

// Initialize pushes the item's starting quantity of zero. Callers are expected
// to initialize exactly once, at listing time.
func (t *AggregateTracker) Initialize(category, url string) error {
	return t.Set(category, url, 0)
}

// Read returns the item's current committed quantity. ok is false when the
// slot is empty, meaning the item was never listed or is already settled or
// removed.
func (t *AggregateTracker) Read(category, url string) (uint32, bool, error) {
	coll, err := t.slot(category, url)
	if err != nil {
		return 0, false, err
	}
	length, err := coll.Len()
	if err != nil {
		return 0, false, err
	}
	if length == 0 {
		return 0, false, nil
	}
	raw, err := coll.GetAt(0)
	if err != nil {
		return 0, false, err
	}
	var value uint32
	if err := rlp.DecodeBytes(raw, &value); err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Set replaces the stored quantity: any existing value is popped before the
// new one is pushed, so the slot never grows past one element.
func (t *AggregateTracker) Set(category, url string, value uint32) error {
	coll, err := t.slot(category, url)
	if err != nil {
		return err
	}
	if err := coll.Pop(); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return coll.Push(encoded)
}

// Teardown empties the slot. Tearing down an already-empty slot is a no-op.
func (t *AggregateTracker) Teardown(category, url string) error {
	coll, err := t.slot(category, url)
	if err != nil {
		return err
	}
	return coll.Pop()
}
