package market

import (
	"fmt"

	"groupbuy/core/events"
	"groupbuy/core/state"
)

// Engine orchestrates the catalog, aggregate tracker, participant ledger and
// credential store to run the settlement state machine. Per item the machine
// is NotExists → Open → Finalized | Removed; "Open" covers both a fresh
// listing (aggregate 0) and a partially filled group.
//
// One invocation performs one transition and produces at most one FundTransfer
// instruction. The engine performs no fund movement itself and keeps no
// rollback log: the host runs it over storage with an apply-or-discard
// guarantee, so any error aborts the whole invocation.
type Engine struct {
	catalog     *Catalog
	aggregates  *AggregateTracker
	ledger      *ParticipantLedger
	credentials *CredentialStore
	emitter     events.Emitter
}

// NewEngine creates a settlement engine over the provided state manager with a
// no-op event emitter. Callers can override the emitter via SetEmitter.
func NewEngine(st *state.Manager) *Engine {
	return &Engine{
		catalog:     NewCatalog(st),
		aggregates:  NewAggregateTracker(st),
		ledger:      NewParticipantLedger(st),
		credentials: NewCredentialStore(st),
		emitter:     events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

// ListItem appends a listing to its category catalog and initializes the
// item's aggregate to zero. NotExists → Open. Listing a URL already present in
// the category fails with ErrItemExists.
func (e *Engine) ListItem(listing *Listing) error {
	sanitized, err := listing.sanitize()
	if err != nil {
		return err
	}
	if _, err := lookupCategory(sanitized.Category); err != nil {
		return err
	}
	if _, err := e.catalog.FindByURL(sanitized.Category, sanitized.URL); err == nil {
		return fmt.Errorf("%w: %s/%s", ErrItemExists, sanitized.Category, sanitized.URL)
	} else if !isNotFound(err) {
		return err
	}
	if err := e.catalog.Append(sanitized); err != nil {
		return err
	}
	if err := e.aggregates.Initialize(sanitized.Category, sanitized.URL); err != nil {
		return err
	}
	e.emit(ItemListed{
		Category: sanitized.Category,
		URL:      sanitized.URL,
		Seller:   sanitized.Seller,
		Goal:     sanitized.GroupSizeGoal,
	})
	return nil
}

// loadOpenItem resolves an item that must currently be open. A catalog miss is
// ErrItemNotFound; a present listing with an empty aggregate slot means the
// item already settled or was removed and reads as ErrItemInactive.
func (e *Engine) loadOpenItem(category, url string) (*Listing, uint32, error) {
	listing, err := e.catalog.FindByURL(category, url)
	if err != nil {
		return nil, 0, err
	}
	aggregate, ok, err := e.aggregates.Read(category, url)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s/%s", ErrItemInactive, category, url)
	}
	return listing, aggregate, nil
}

// JoinOrUpdate is the single mutation entry point for buyers. It dispatches on
// the account's current commitment and the requested quantity:
//
//   - no commitment, quantity 0:   rejected
//   - no commitment, quantity > 0: join (or finalize when the goal is reached)
//   - commitment,    quantity 0:   leave with a full refund
//   - commitment,    quantity > 0: update (refund on shrink, finalize on
//     crossing the goal)
//
// The returned FundTransfer, when non-nil, is the invocation's single payment
// instruction for the host to execute after commit.
func (e *Engine) JoinOrUpdate(category, url string, account [20]byte, quantity uint32, contact ContactData) (*FundTransfer, error) {
	listing, aggregate, err := e.loadOpenItem(category, url)
	if err != nil {
		return nil, err
	}
	existing, found, err := e.ledger.ReadQuantity(category, url, account)
	if err != nil {
		return nil, err
	}
	details := &ParticipantDetails{Account: account, Contact: contact, Quantity: quantity}
	if !found {
		return e.join(listing, aggregate, details)
	}
	if quantity == 0 {
		return e.leave(listing, aggregate, account, existing.Quantity)
	}
	return e.update(listing, aggregate, details, existing.Quantity)
}

func (e *Engine) join(listing *Listing, aggregate uint32, details *ParticipantDetails) (*FundTransfer, error) {
	if details.Quantity == 0 {
		return nil, ErrZeroQuantityJoin
	}
	newAggregate := uint64(aggregate) + uint64(details.Quantity)
	if newAggregate >= uint64(listing.GroupSizeGoal) {
		// The joining commitment is never persisted on this branch; it
		// exists only as units in the seller payment.
		return e.finalize(listing, newAggregate)
	}
	if err := e.ledger.Join(listing.Category, listing.URL, details); err != nil {
		return nil, err
	}
	if err := e.aggregates.Set(listing.Category, listing.URL, uint32(newAggregate)); err != nil {
		return nil, err
	}
	e.emit(CommitmentUpdated{
		Category:    listing.Category,
		URL:         listing.URL,
		Account:     details.Account,
		OldQuantity: 0,
		NewQuantity: details.Quantity,
		Aggregate:   uint32(newAggregate),
	})
	return nil, nil
}

func (e *Engine) leave(listing *Listing, aggregate uint32, account [20]byte, oldQuantity uint32) (*FundTransfer, error) {
	if oldQuantity > aggregate {
		return nil, fmt.Errorf("%w: commitment %d exceeds aggregate %d for %s/%s",
			ErrLedgerCorrupted, oldQuantity, aggregate, listing.Category, listing.URL)
	}
	if err := e.aggregates.Set(listing.Category, listing.URL, aggregate-oldQuantity); err != nil {
		return nil, err
	}
	if err := e.ledger.Leave(listing.Category, listing.URL, account); err != nil {
		return nil, err
	}
	refund := unitAmount(uint64(oldQuantity), listing.WantedPrice)
	e.emit(RefundIssued{
		Category: listing.Category,
		URL:      listing.URL,
		Account:  account,
		Units:    oldQuantity,
		Amount:   refund,
	})
	// The item stays open even at aggregate zero; only finalization or an
	// authenticated removal tears it down.
	return &FundTransfer{To: account, Amount: refund}, nil
}

func (e *Engine) update(listing *Listing, aggregate uint32, details *ParticipantDetails, oldQuantity uint32) (*FundTransfer, error) {
	if oldQuantity > aggregate {
		return nil, fmt.Errorf("%w: commitment %d exceeds aggregate %d for %s/%s",
			ErrLedgerCorrupted, oldQuantity, aggregate, listing.Category, listing.URL)
	}
	newAggregate := uint64(aggregate) + uint64(details.Quantity) - uint64(oldQuantity)
	if newAggregate >= uint64(listing.GroupSizeGoal) && details.Quantity > oldQuantity {
		return e.finalize(listing, newAggregate)
	}
	if err := e.aggregates.Set(listing.Category, listing.URL, uint32(newAggregate)); err != nil {
		return nil, err
	}
	if err := e.ledger.Update(listing.Category, listing.URL, details); err != nil {
		return nil, err
	}
	e.emit(CommitmentUpdated{
		Category:    listing.Category,
		URL:         listing.URL,
		Account:     details.Account,
		OldQuantity: oldQuantity,
		NewQuantity: details.Quantity,
		Aggregate:   uint32(newAggregate),
	})
	if details.Quantity < oldQuantity {
		refund := unitAmount(uint64(oldQuantity-details.Quantity), listing.WantedPrice)
		e.emit(RefundIssued{
			Category: listing.Category,
			URL:      listing.URL,
			Account:  details.Account,
			Units:    oldQuantity - details.Quantity,
			Amount:   refund,
		})
		return &FundTransfer{To: details.Account, Amount: refund}, nil
	}
	return nil, nil
}

// finalize pays the seller for the full unit count and tears the item down.
// Open → Finalized.
func (e *Engine) finalize(listing *Listing, units uint64) (*FundTransfer, error) {
	payment := unitAmount(units, listing.WantedPrice)
	if err := e.teardown(listing.Category, listing.URL); err != nil {
		return nil, err
	}
	e.emit(ItemFinalized{
		Category: listing.Category,
		URL:      listing.URL,
		Seller:   listing.Seller,
		Units:    units,
		Payment:  payment,
	})
	return &FundTransfer{To: listing.Seller, Amount: payment}, nil
}

// teardown removes every durable region the item owns: its catalog entry, its
// aggregate slot and all participant records on both ledger sides.
func (e *Engine) teardown(category, url string) error {
	if err := e.catalog.RemoveByURL(category, url); err != nil {
		return err
	}
	if err := e.aggregates.Teardown(category, url); err != nil {
		return err
	}
	return e.ledger.TeardownItem(category, url)
}

// RemoveItem performs an authenticated administrative removal. Open → Removed.
// No refunds are issued on this path; the emitted event carries the
// outstanding aggregate for off-band settlement.
func (e *Engine) RemoveItem(category, url string, requester [20]byte, credential string) error {
	if err := e.credentials.Verify(requester, credential); err != nil {
		return err
	}
	if _, err := e.catalog.FindByURL(category, url); err != nil {
		return err
	}
	outstanding, ok, err := e.aggregates.Read(category, url)
	if err != nil {
		return err
	}
	if !ok {
		// Teardown removes the catalog entry and the aggregate slot
		// together; a listing without a slot means the books are broken.
		return fmt.Errorf("%w: aggregate slot missing for %s/%s", ErrLedgerCorrupted, category, url)
	}
	if err := e.teardown(category, url); err != nil {
		return err
	}
	e.emit(ItemRemoved{
		Category:    category,
		URL:         url,
		Requester:   requester,
		Outstanding: outstanding,
	})
	return nil
}

// SetCredential stores or overwrites the account's credential.
func (e *Engine) SetCredential(account [20]byte, secret string) error {
	return e.credentials.Set(account, secret)
}

// VerifyCredential checks a presented credential. Used by the authenticated
// read surface.
func (e *Engine) VerifyCredential(account [20]byte, credential string) error {
	return e.credentials.Verify(account, credential)
}

// CategoryItems returns every open listing in the category together with its
// current aggregate.
func (e *Engine) CategoryItems(category string) ([]ItemView, error) {
	listings, err := e.catalog.Items(category)
	if err != nil {
		return nil, err
	}
	views := make([]ItemView, 0, len(listings))
	for _, listing := range listings {
		aggregate, ok, err := e.aggregates.Read(category, listing.URL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: aggregate slot missing for %s/%s",
				ErrLedgerCorrupted, category, listing.URL)
		}
		views = append(views, ItemView{Listing: listing, CurrentGroupSize: aggregate})
	}
	return views, nil
}

// AccountCommitments returns the account's commitments within the category.
func (e *Engine) AccountCommitments(category string, account [20]byte) ([]*AccountCommitment, error) {
	return e.ledger.Commitments(category, account)
}

// ItemParticipant returns the account's detail record for the item, if any.
func (e *Engine) ItemParticipant(category, url string, account [20]byte) (*ParticipantDetails, bool, error) {
	return e.ledger.ReadParticipant(category, url, account)
}

// AccountOverview answers the authenticated category query: all open items,
// the account's commitments and the contact data attached to the first of
// them, if any.
func (e *Engine) AccountOverview(category string, account [20]byte) (*AccountOverview, error) {
	items, err := e.CategoryItems(category)
	if err != nil {
		return nil, err
	}
	commitments, err := e.AccountCommitments(category, account)
	if err != nil {
		return nil, err
	}
	overview := &AccountOverview{Items: items, Commitments: commitments}
	if len(commitments) > 0 {
		participant, ok, err := e.ledger.ReadParticipant(category, commitments[0].URL, account)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: by-item record missing for %s/%s",
				ErrLedgerCorrupted, category, commitments[0].URL)
		}
		contact := participant.Contact
		overview.Contact = &contact
	}
	return overview, nil
}
