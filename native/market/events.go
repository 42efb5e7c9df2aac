package market

import "math/big"

// Event type identifiers emitted by the settlement engine.
const (
	EventTypeItemListed        = "market.item.listed"
	EventTypeCommitmentUpdated = "market.commitment.updated"
	EventTypeItemFinalized     = "market.item.finalized"
	EventTypeRefundIssued      = "market.refund.issued"
	EventTypeItemRemoved       = "market.item.removed"
)

// ItemListed is emitted when a seller lists a new item.
type ItemListed struct {
	Category string
	URL      string
	Seller   [20]byte
	Goal     uint32
}

func (ItemListed) EventType() string { return EventTypeItemListed }

// CommitmentUpdated is emitted when an account joins an item or changes its
// committed quantity without settling the group.
type CommitmentUpdated struct {
	Category    string
	URL         string
	Account     [20]byte
	OldQuantity uint32
	NewQuantity uint32
	Aggregate   uint32
}

func (CommitmentUpdated) EventType() string { return EventTypeCommitmentUpdated }

// ItemFinalized is emitted when the aggregate reaches the goal: the seller is
// paid for Units units and the item is torn down.
type ItemFinalized struct {
	Category string
	URL      string
	Seller   [20]byte
	Units    uint64
	Payment  *big.Int
}

func (ItemFinalized) EventType() string { return EventTypeItemFinalized }

// RefundIssued is emitted when a commitment shrinks or is withdrawn and the
// account is refunded for Units units.
type RefundIssued struct {
	Category string
	URL      string
	Account  [20]byte
	Units    uint32
	Amount   *big.Int
}

func (RefundIssued) EventType() string { return EventTypeRefundIssued }

// ItemRemoved is emitted on authenticated administrative removal. Outstanding
// is the aggregate quantity still committed at removal time; the engine issues
// no refunds on this path, the event exists so an operator process can settle
// participants off-band.
type ItemRemoved struct {
	Category    string
	URL         string
	Requester   [20]byte
	Outstanding uint32
}

func (ItemRemoved) EventType() string { return EventTypeItemRemoved }
