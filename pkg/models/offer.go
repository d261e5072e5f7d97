package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type OfferSide string

const (
	OfferSideSelling OfferSide = "selling"
	OfferSideBuying  OfferSide = "buying"
)

// RawOffer is an open offer as the ledger reports it. PriceN/PriceD is the
// exact price ratio of buying per selling.
type RawOffer struct {
	ID      int64
	Selling Asset
	Buying  Asset
	Amount  string
	Price   string
	PriceN  int32
	PriceD  int32
}

// Offer is an open offer on the configured pair, expressed in base units.
type Offer struct {
	ID      int64           `json:"id"`
	Side    OfferSide       `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
	Selling Asset           `json:"selling"`
	Buying  Asset           `json:"buying"`
}

// Describe renders the offer as "{side} {amount} {BASE}, {price} {COUNTER}/{BASE}".
func (o Offer) Describe(pair Pair) string {
	return fmt.Sprintf("%s %s %s, %s %s/%s",
		o.Side,
		o.Amount.StringFixed(Precision),
		pair.Base.Code,
		o.Price.StringFixed(Precision),
		pair.Counter.Code,
		pair.Base.Code,
	)
}

// OfferOp is a single manage-sell-offer operation. A zero Amount with a
// non-zero OfferID deletes that offer.
type OfferOp struct {
	OfferID int64
	Selling Asset
	Buying  Asset
	Amount  decimal.Decimal
	Price   decimal.Decimal
}

func (op OfferOp) IsDelete() bool {
	return op.OfferID != 0 && op.Amount.IsZero()
}

type Submission struct {
	Hash       string `json:"hash"`
	Ledger     int32  `json:"ledger"`
	Operations int    `json:"operations"`
}
