package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"groupbuy/core/state"
)

// Catalog stores each category's listings in one indexed collection. Lookup is
// a linear scan on the URL field; removal uses the collection's swap-remove,
// so catalog order beyond "most recently listed" is not meaningful.
type Catalog struct {
	st *state.Manager
}

// NewCatalog creates a catalog backed by the provided state manager.
func NewCatalog(st *state.Manager) *Catalog {
	return &Catalog{st: st}
}

func (c *Catalog) collection(category string) (*state.Collection, error) {
	ns, err := lookupCategory(category)
	if err != nil {
		return nil, err
	}
	return c.st.Collection(ns.catalog), nil
}

// Append adds a listing to its category's catalog. No uniqueness check happens
// at this layer; the engine guards against double-listing before calling it.
func (c *Catalog) Append(listing *Listing) error {
	coll, err := c.collection(listing.Category)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(listing)
	if err != nil {
		return err
	}
	return coll.Push(encoded)
}

// FindByURL returns the first listing in the category with a matching URL.
func (c *Catalog) FindByURL(category, url string) (*Listing, error) {
	coll, err := c.collection(category)
	if err != nil {
		return nil, err
	}
	var found *Listing
	err = coll.Each(func(_ uint64, raw []byte) (bool, error) {
		listing := new(Listing)
		if err := rlp.DecodeBytes(raw, listing); err != nil {
			return false, err
		}
		if listing.URL == url {
			found = listing
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrItemNotFound, category, url)
	}
	return found, nil
}

// RemoveByURL deletes the listing with a matching URL from the category.
func (c *Catalog) RemoveByURL(category, url string) error {
	coll, err := c.collection(category)
	if err != nil {
		return err
	}
	index := uint64(0)
	found := false
	err = coll.Each(func(i uint64, raw []byte) (bool, error) {
		listing := new(Listing)
		if err := rlp.DecodeBytes(raw, listing); err != nil {
			return false, err
		}
		if listing.URL == url {
			index = i
			found = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s/%s", ErrItemNotFound, category, url)
	}
	return coll.SwapRemove(index)
}

// Items returns every listing in the category. An empty category yields an
// empty slice, not an error.
func (c *Catalog) Items(category string) ([]*Listing, error) {
	coll, err := c.collection(category)
	if err != nil {
		return nil, err
	}
	listings := []*Listing{}
	err = coll.Each(func(_ uint64, raw []byte) (bool, error) {
		listing := new(Listing)
		if err := rlp.DecodeBytes(raw, listing); err != nil {
			return false, err
		}
		listings = append(listings, listing)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}
