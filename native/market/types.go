package market

import (
	"fmt"
	"math/big"
	"strings"
)

// Listing is the immutable description of a group-purchase offer. The URL is
// the item's identifier within its category; nothing mutates a listing after
// creation, it is only ever appended and removed whole.
type Listing struct {
	Name          string
	Category      string
	URL           string
	ImageURL      string
	Seller        [20]byte
	SellerEmail   string
	Price         *big.Int
	WantedPrice   *big.Int
	GroupSizeGoal uint32
}

func (l *Listing) sanitize() (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil listing", ErrInvalidListing)
	}
	clone := *l
	clone.Name = strings.TrimSpace(clone.Name)
	clone.Category = strings.ToLower(strings.TrimSpace(clone.Category))
	clone.URL = strings.TrimSpace(clone.URL)
	if clone.URL == "" {
		return nil, fmt.Errorf("%w: url required", ErrInvalidListing)
	}
	if clone.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidListing)
	}
	if clone.GroupSizeGoal == 0 {
		return nil, fmt.Errorf("%w: group size goal must be positive", ErrInvalidListing)
	}
	if clone.Price == nil || clone.Price.Sign() < 0 {
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidListing)
	}
	if clone.WantedPrice == nil || clone.WantedPrice.Sign() < 0 {
		return nil, fmt.Errorf("%w: wanted price must be non-negative", ErrInvalidListing)
	}
	clone.Price = new(big.Int).Set(clone.Price)
	clone.WantedPrice = new(big.Int).Set(clone.WantedPrice)
	return &clone, nil
}

// ContactData carries the delivery details a buyer attaches to a commitment.
type ContactData struct {
	Email           string
	DeliveryAddress string
}

// ParticipantDetails is the by-item view of a commitment: who committed, how to
// reach them and for how many units.
type ParticipantDetails struct {
	Account  [20]byte
	Contact  ContactData
	Quantity uint32
}

// AccountCommitment is the by-account view of a commitment: which item and how
// many units. The two views always exist and die together.
type AccountCommitment struct {
	URL      string
	Quantity uint32
}

// ItemView pairs a listing with its current committed quantity for read
// queries.
type ItemView struct {
	Listing          *Listing
	CurrentGroupSize uint32
}

// AccountOverview is the authenticated read answer: the category's open items,
// the account's commitments within it and the contact data on file, if any.
type AccountOverview struct {
	Items       []ItemView
	Commitments []*AccountCommitment
	Contact     *ContactData
}

// FundTransfer is the single outbound payment instruction an invocation may
// produce. The core never moves funds itself; the host executes the
// instruction after the invocation commits.
type FundTransfer struct {
	To     [20]byte
	Amount *big.Int
}

// unitAmount widens a unit count to a big.Int product with the per-unit price,
// so large groups cannot overflow the payment computation.
func unitAmount(units uint64, unitPrice *big.Int) *big.Int {
	if unitPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(units), unitPrice)
}
