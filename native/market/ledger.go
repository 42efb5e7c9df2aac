package market

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"groupbuy/core/state"
)

// ParticipantLedger keeps the two denormalized views of every commitment:
//
//	by-item:    participants namespace + url → ParticipantDetails records
//	by-account: dynamic namespace + account  → AccountCommitment records
//
// Every write and removal touches both views inside the same invocation.
// Observing one view without its counterpart is never a valid transient state;
// it surfaces as ErrLedgerCorrupted.
type ParticipantLedger struct {
	st *state.Manager
}

// NewParticipantLedger creates a ledger backed by the provided state manager.
func NewParticipantLedger(st *state.Manager) *ParticipantLedger {
	return &ParticipantLedger{st: st}
}

func (l *ParticipantLedger) byItem(category, url string) (*state.Collection, error) {
	ns, err := lookupCategory(category)
	if err != nil {
		return nil, err
	}
	return l.st.Collection(ns.participantsNS(url)), nil
}

func (l *ParticipantLedger) byAccount(category string, account [20]byte) (*state.Collection, error) {
	ns, err := lookupCategory(category)
	if err != nil {
		return nil, err
	}
	return l.st.Collection(ns.accountNS(account)), nil
}

// findCommitment scans the by-account view for a record matching the URL.
func findCommitment(coll *state.Collection, url string) (uint64, *AccountCommitment, error) {
	var (
		index uint64
		found *AccountCommitment
	)
	err := coll.Each(func(i uint64, raw []byte) (bool, error) {
		rec := new(AccountCommitment)
		if err := rlp.DecodeBytes(raw, rec); err != nil {
			return false, err
		}
		if rec.URL == url {
			index = i
			found = rec
			return false, nil
		}
		return true, nil
	})
	return index, found, err
}

// findParticipant scans the by-item view for a record matching the account.
func findParticipant(coll *state.Collection, account [20]byte) (uint64, *ParticipantDetails, error) {
	var (
		index uint64
		found *ParticipantDetails
	)
	err := coll.Each(func(i uint64, raw []byte) (bool, error) {
		rec := new(ParticipantDetails)
		if err := rlp.DecodeBytes(raw, rec); err != nil {
			return false, err
		}
		if rec.Account == account {
			index = i
			found = rec
			return false, nil
		}
		return true, nil
	})
	return index, found, err
}

// Join records a new commitment in both views. The caller guarantees the
// account has no existing commitment for this item.
func (l *ParticipantLedger) Join(category, url string, details *ParticipantDetails) error {
	accounts, err := l.byAccount(category, details.Account)
	if err != nil {
		return err
	}
	commitment := &AccountCommitment{URL: url, Quantity: details.Quantity}
	encoded, err := rlp.EncodeToBytes(commitment)
	if err != nil {
		return err
	}
	if err := accounts.Push(encoded); err != nil {
		return err
	}
	items, err := l.byItem(category, url)
	if err != nil {
		return err
	}
	encoded, err = rlp.EncodeToBytes(details)
	if err != nil {
		return err
	}
	return items.Push(encoded)
}

// Update overwrites an existing commitment's quantity (and contact details) in
// both views in place.
func (l *ParticipantLedger) Update(category, url string, details *ParticipantDetails) error {
	accounts, err := l.byAccount(category, details.Account)
	if err != nil {
		return err
	}
	index, existing, err := findCommitment(accounts, url)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s/%s", ErrCommitmentNotFound, category, url)
	}
	existing.Quantity = details.Quantity
	encoded, err := rlp.EncodeToBytes(existing)
	if err != nil {
		return err
	}
	if err := accounts.SetAt(index, encoded); err != nil {
		return err
	}

	items, err := l.byItem(category, url)
	if err != nil {
		return err
	}
	index, participant, err := findParticipant(items, details.Account)
	if err != nil {
		return err
	}
	if participant == nil {
		return fmt.Errorf("%w: by-item record missing for %s/%s", ErrLedgerCorrupted, category, url)
	}
	encoded, err = rlp.EncodeToBytes(details)
	if err != nil {
		return err
	}
	return items.SetAt(index, encoded)
}

// Leave removes the commitment from both views.
func (l *ParticipantLedger) Leave(category, url string, account [20]byte) error {
	accounts, err := l.byAccount(category, account)
	if err != nil {
		return err
	}
	index, existing, err := findCommitment(accounts, url)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s/%s", ErrCommitmentNotFound, category, url)
	}
	if err := accounts.SwapRemove(index); err != nil {
		return err
	}

	items, err := l.byItem(category, url)
	if err != nil {
		return err
	}
	index, participant, err := findParticipant(items, account)
	if err != nil {
		return err
	}
	if participant == nil {
		return fmt.Errorf("%w: by-item record missing for %s/%s", ErrLedgerCorrupted, category, url)
	}
	return items.SwapRemove(index)
}

// TeardownItem erases every trace of the item from the ledger: it collects the
// participating accounts, drains the by-item view, then removes each account's
// by-account record for the URL.
func (l *ParticipantLedger) TeardownItem(category, url string) error {
	participants, err := l.Participants(category, url)
	if err != nil {
		return err
	}
	items, err := l.byItem(category, url)
	if err != nil {
		return err
	}
	for range participants {
		if err := items.Pop(); err != nil {
			return err
		}
	}
	for _, participant := range participants {
		accounts, err := l.byAccount(category, participant.Account)
		if err != nil {
			return err
		}
		index, existing, err := findCommitment(accounts, url)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: by-account record missing for %s/%s", ErrLedgerCorrupted, category, url)
		}
		if err := accounts.SwapRemove(index); err != nil {
			return err
		}
	}
	return nil
}

// ReadQuantity returns the account's by-account record for the URL, if any.
func (l *ParticipantLedger) ReadQuantity(category, url string, account [20]byte) (*AccountCommitment, bool, error) {
	accounts, err := l.byAccount(category, account)
	if err != nil {
		return nil, false, err
	}
	_, existing, err := findCommitment(accounts, url)
	if err != nil {
		return nil, false, err
	}
	return existing, existing != nil, nil
}

// ReadParticipant returns the account's by-item detail record for the URL, if
// any.
func (l *ParticipantLedger) ReadParticipant(category, url string, account [20]byte) (*ParticipantDetails, bool, error) {
	items, err := l.byItem(category, url)
	if err != nil {
		return nil, false, err
	}
	_, participant, err := findParticipant(items, account)
	if err != nil {
		return nil, false, err
	}
	return participant, participant != nil, nil
}

// Participants returns every detail record for the item.
func (l *ParticipantLedger) Participants(category, url string) ([]*ParticipantDetails, error) {
	items, err := l.byItem(category, url)
	if err != nil {
		return nil, err
	}
	records := []*ParticipantDetails{}
	err = items.Each(func(_ uint64, raw []byte) (bool, error) {
		rec := new(ParticipantDetails)
		if err := rlp.DecodeBytes(raw, rec); err != nil {
			return false, err
		}
		records = append(records, rec)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Commitments returns every by-account record the account holds in the
// category.
func (l *ParticipantLedger) Commitments(category string, account [20]byte) ([]*AccountCommitment, error) {
	accounts, err := l.byAccount(category, account)
	if err != nil {
		return nil, err
	}
	records := []*AccountCommitment{}
	err = accounts.Each(func(_ uint64, raw []byte) (bool, error) {
		rec := new(AccountCommitment)
		if err := rlp.DecodeBytes(raw, rec); err != nil {
			return false, err
		}
		records = append(records, rec)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
