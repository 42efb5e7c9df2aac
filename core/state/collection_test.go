package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"groupbuy/storage"
)

func testCollection(t *testing.T) *Collection {
	t.Helper()
	return NewManager(storage.NewMemDB()).Collection([]byte("test:records"))
}

func TestCollectionLazyAttach(t *testing.T) {
	coll := testCollection(t)
	length, err := coll.Len()
	require.NoError(t, err)
	require.Zero(t, length)

	// Iterating a never-written namespace visits nothing.
	visited := 0
	require.NoError(t, coll.Each(func(uint64, []byte) (bool, error) {
		visited++
		return true, nil
	}))
	require.Zero(t, visited)
}

func TestCollectionPushGetSet(t *testing.T) {
	coll := testCollection(t)
	require.NoError(t, coll.Push([]byte("a")))
	require.NoError(t, coll.Push([]byte("b")))
	require.NoError(t, coll.Push([]byte("c")))

	length, err := coll.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(3), length)

	raw, err := coll.GetAt(1)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), raw)

	require.NoError(t, coll.SetAt(1, []byte("B")))
	raw, err = coll.GetAt(1)
	require.NoError(t, err)
	require.Equal(t, []byte("B"), raw)

	_, err = coll.GetAt(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	require.ErrorIs(t, coll.SetAt(3, []byte("x")), ErrIndexOutOfRange)
}

func TestCollectionPopEmptyIsNoop(t *testing.T) {
	coll := testCollection(t)
	require.NoError(t, coll.Pop())

	require.NoError(t, coll.Push([]byte("only")))
	require.NoError(t, coll.Pop())
	require.NoError(t, coll.Pop())

	length, err := coll.Len()
	require.NoError(t, err)
	require.Zero(t, length)
}

func TestCollectionEachStopsEarly(t *testing.T) {
	coll := testCollection(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, coll.Push([]byte{byte(i)}))
	}
	var seen []byte
	require.NoError(t, coll.Each(func(_ uint64, raw []byte) (bool, error) {
		seen = append(seen, raw[0])
		return raw[0] < 2, nil
	}))
	require.Equal(t, []byte{0, 1, 2}, seen)

	// The walk is restartable: a second full pass sees storage order again.
	seen = seen[:0]
	require.NoError(t, coll.Each(func(_ uint64, raw []byte) (bool, error) {
		seen = append(seen, raw[0])
		return true, nil
	}))
	require.Equal(t, []byte{0, 1, 2, 3, 4}, seen)
}

func TestCollectionSwapRemove(t *testing.T) {
	// Removing the k-th of n records must leave exactly the other n-1,
	// order-insensitively, for every k.
	const n = 7
	for k := uint64(0); k < n; k++ {
		t.Run(fmt.Sprintf("remove_%d_of_%d", k, n), func(t *testing.T) {
			coll := testCollection(t)
			for i := 0; i < n; i++ {
				require.NoError(t, coll.Push([]byte{byte(i)}))
			}
			require.NoError(t, coll.SwapRemove(k))

			length, err := coll.Len()
			require.NoError(t, err)
			require.Equal(t, uint64(n-1), length)

			remaining := map[byte]bool{}
			require.NoError(t, coll.Each(func(_ uint64, raw []byte) (bool, error) {
				remaining[raw[0]] = true
				return true, nil
			}))
			require.Len(t, remaining, n-1)
			for i := byte(0); i < n; i++ {
				require.Equal(t, i != byte(k), remaining[i], "record %d", i)
			}
		})
	}
}

func TestCollectionSwapRemoveOutOfRange(t *testing.T) {
	coll := testCollection(t)
	require.ErrorIs(t, coll.SwapRemove(0), ErrIndexOutOfRange)
}

func TestCollectionsAreNamespaceIsolated(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	a := mgr.Collection([]byte("ns:a"))
	b := mgr.Collection([]byte("ns:b"))

	require.NoError(t, a.Push([]byte("a0")))
	length, err := b.Len()
	require.NoError(t, err)
	require.Zero(t, length)
}

func TestManagerKV(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	type record struct {
		Name  string
		Count uint32
	}
	var out record
	ok, err := mgr.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("rec"), &record{Name: "x", Count: 3}))
	ok, err = mgr.KVGet([]byte("rec"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record{Name: "x", Count: 3}, out)

	require.NoError(t, mgr.KVDelete([]byte("rec")))
	ok, err = mgr.KVGet([]byte("rec"), &out)
	require.NoError(t, err)
	require.False(t, ok)
}
