package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"groupbuy/storage"
)

// ErrIndexOutOfRange is returned by positional collection accessors when the
// index does not address a stored element. Hitting it means the caller's
// bookkeeping disagrees with the collection's, which is a bug, not an input
// error.
var ErrIndexOutOfRange = errors.New("state: collection index out of range")

var lenSuffix = []byte(":len")

// Collection is an ordered, append-only sequence of raw records stored under a
// byte-string namespace. Elements live at per-index keys with a separate length
// cell, so positional reads, overwrites and tail removal are all single-key
// operations.
//
// Removal of an arbitrary element goes through SwapRemove, which moves the last
// element into the vacated slot. Relative order among the remaining elements is
// NOT preserved; callers that rely on more than "most recently appended" must
// not use it.
type Collection struct {
	db        storage.Database
	namespace []byte
}

func (c *Collection) lenKey() []byte {
	buf := make([]byte, 0, len(c.namespace)+len(lenSuffix))
	buf = append(buf, c.namespace...)
	buf = append(buf, lenSuffix...)
	return ethcrypto.Keccak256(buf)
}

func (c *Collection) elemKey(index uint64) []byte {
	buf := make([]byte, 0, len(c.namespace)+1+8)
	buf = append(buf, c.namespace...)
	buf = append(buf, ':')
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	buf = append(buf, idx[:]...)
	return ethcrypto.Keccak256(buf)
}

func (c *Collection) writeLen(length uint64) error {
	if length == 0 {
		// Leave no residue behind an emptied collection; the namespace
		// reverts to "never written".
		return c.db.Delete(c.lenKey())
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], length)
	return c.db.Put(c.lenKey(), buf[:])
}

// Len reports the number of stored elements.
func (c *Collection) Len() (uint64, error) {
	data, err := c.db.Get(c.lenKey())
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: malformed collection length cell (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Push appends a record to the collection, creating it if necessary.
func (c *Collection) Push(raw []byte) error {
	length, err := c.Len()
	if err != nil {
		return err
	}
	if err := c.db.Put(c.elemKey(length), raw); err != nil {
		return err
	}
	return c.writeLen(length + 1)
}

// GetAt returns the record stored at the provided index.
func (c *Collection) GetAt(index uint64) ([]byte, error) {
	length, err := c.Len()
	if err != nil {
		return nil, err
	}
	if index >= length {
		return nil, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, index, length)
	}
	return c.db.Get(c.elemKey(index))
}

// SetAt overwrites the record stored at the provided index.
func (c *Collection) SetAt(index uint64, raw []byte) error {
	length, err := c.Len()
	if err != nil {
		return err
	}
	if index >= length {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, index, length)
	}
	return c.db.Put(c.elemKey(index), raw)
}

// Pop removes the last record. Popping an empty collection is a successful
// no-op.
func (c *Collection) Pop() error {
	length, err := c.Len()
	if err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	if err := c.db.Delete(c.elemKey(length - 1)); err != nil {
		return err
	}
	return c.writeLen(length - 1)
}

// SwapRemove removes the record at the provided index by overwriting it with
// the last record and truncating. O(1), order-non-preserving.
func (c *Collection) SwapRemove(index uint64) error {
	length, err := c.Len()
	if err != nil {
		return err
	}
	if index >= length {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, index, length)
	}
	if index != length-1 {
		last, err := c.GetAt(length - 1)
		if err != nil {
			return err
		}
		if err := c.SetAt(index, last); err != nil {
			return err
		}
	}
	return c.Pop()
}

// Each invokes fn for every record in storage order. Returning false from fn
// stops the iteration early. The walk re-reads the length cell on entry only,
// so fn must not mutate the collection it is walking.
func (c *Collection) Each(fn func(index uint64, raw []byte) (bool, error)) error {
	length, err := c.Len()
	if err != nil {
		return err
	}
	for i := uint64(0); i < length; i++ {
		raw, err := c.db.Get(c.elemKey(i))
		if err != nil {
			return err
		}
		cont, err := fn(i, raw)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
