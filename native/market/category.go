package market

import (
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Each category owns three storage namespaces:
//
//	catalog      — the category's listing collection
//	dynamic      — per-item aggregate slots and per-account commitment lists
//	participants — per-item participant detail lists
//
// Adding a category is a table edit, not a code change.
type categoryNamespaces struct {
	catalog      []byte
	dynamic      []byte
	participants []byte
}

func newCategoryNamespaces(name string) categoryNamespaces {
	return categoryNamespaces{
		catalog:      []byte("market:catalog:" + name),
		dynamic:      []byte("market:dynamic:" + name),
		participants: []byte("market:participants:" + name),
	}
}

var categoryTable = map[string]categoryNamespaces{
	"laptops":     newCategoryNamespaces("laptops"),
	"smartphones": newCategoryNamespaces("smartphones"),
	"tablets":     newCategoryNamespaces("tablets"),
	"appliances":  newCategoryNamespaces("appliances"),
}

func lookupCategory(name string) (categoryNamespaces, error) {
	ns, ok := categoryTable[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return categoryNamespaces{}, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return ns, nil
}

// Categories returns the supported category names in sorted order.
func Categories() []string {
	names := make([]string, 0, len(categoryTable))
	for name := range categoryTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// urlKey derives the fixed-size storage key for an item URL. The 32-byte
// digest also keeps per-item namespaces disjoint from per-account ones, which
// use raw 20-byte addresses.
func urlKey(url string) [32]byte {
	var key [32]byte
	copy(key[:], ethcrypto.Keccak256([]byte(url)))
	return key
}

func (ns categoryNamespaces) aggregateNS(url string) []byte {
	key := urlKey(url)
	buf := make([]byte, 0, len(ns.dynamic)+1+len(key))
	buf = append(buf, ns.dynamic...)
	buf = append(buf, ':')
	buf = append(buf, key[:]...)
	return buf
}

func (ns categoryNamespaces) accountNS(account [20]byte) []byte {
	buf := make([]byte, 0, len(ns.dynamic)+1+len(account))
	buf = append(buf, ns.dynamic...)
	buf = append(buf, ':')
	buf = append(buf, account[:]...)
	return buf
}

func (ns categoryNamespaces) participantsNS(url string) []byte {
	key := urlKey(url)
	buf := make([]byte, 0, len(ns.participants)+1+len(key))
	buf = append(buf, ns.participants...)
	buf = append(buf, ':')
	buf = append(buf, key[:]...)
	return buf
}
