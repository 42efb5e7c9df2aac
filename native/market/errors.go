package market

import "errors"

// isNotFound reports whether err is the catalog's not-found failure, as
// opposed to a storage or decoding error that must propagate.
func isNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

var (
	// ErrUnknownCategory marks a category name outside the compiled-in set.
	ErrUnknownCategory = errors.New("market: unknown category")
	// ErrInvalidListing marks a listing that fails shape validation.
	ErrInvalidListing = errors.New("market: invalid listing")
	// ErrItemExists marks an attempt to list a URL already present in the
	// category.
	ErrItemExists = errors.New("market: item already listed")
	// ErrItemNotFound marks a URL absent from the category catalog.
	ErrItemNotFound = errors.New("market: item not found")
	// ErrItemInactive marks an item whose aggregate slot is gone: the group
	// already settled or the item was removed.
	ErrItemInactive = errors.New("market: item no longer exists")
	// ErrZeroQuantityJoin rejects joining a purchasing group with quantity 0.
	ErrZeroQuantityJoin = errors.New("market: cannot join a purchasing group with 0 quantity")
	// ErrCommitmentNotFound marks an update targeting a commitment the account
	// does not hold.
	ErrCommitmentNotFound = errors.New("market: commitment not found")
	// ErrAuthenticationFailed is the single error reported for every credential
	// failure. It deliberately does not distinguish "no credential set" from
	// "wrong credential".
	ErrAuthenticationFailed = errors.New("market: authentication failed")
	// ErrLedgerCorrupted reports a broken cross-record invariant: one ledger
	// view without its counterpart, or an aggregate smaller than a live
	// commitment. It is fatal; the current invocation must be discarded.
	ErrLedgerCorrupted = errors.New("market: ledger corrupted")
)
