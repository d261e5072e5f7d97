package maker

import (
	"fmt"

	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Quote holds the spread parameters for both legs. Amounts are in base units.
type Quote struct {
	SellingRate   decimal.Decimal
	SellingAmount decimal.Decimal
	BuyingRate    decimal.Decimal
	BuyingAmount  decimal.Decimal
}

// SellPrice is the ask marked up by the selling rate, in counter per base.
func (q Quote) SellPrice(ask decimal.Decimal) decimal.Decimal {
	return ask.Mul(one.Add(q.SellingRate)).Round(models.Precision)
}

// buyLevel is the bid marked down by the buying rate, in counter per base.
func (q Quote) buyLevel(bid decimal.Decimal) decimal.Decimal {
	return bid.Mul(one.Sub(q.BuyingRate))
}

// BuyPrice is the inverse of the marked down bid: the buy leg sells counter,
// so its price is base per counter.
func (q Quote) BuyPrice(bid decimal.Decimal) (decimal.Decimal, error) {
	level := q.buyLevel(bid)
	if !level.IsPositive() {
		return decimal.Zero, fmt.Errorf("buy level %s from bid %s is not positive", level, bid)
	}
	return one.Div(level).Round(models.Precision), nil
}

// BuyAmount is the counter amount spent to buy BuyingAmount of base at the
// marked down bid.
func (q Quote) BuyAmount(bid decimal.Decimal) decimal.Decimal {
	return q.BuyingAmount.Mul(q.buyLevel(bid)).Round(models.Precision)
}

// Offers builds the sell and buy legs around the top of book.
func (q Quote) Offers(pair models.Pair, top models.TopOfBook) ([]models.OfferOp, error) {
	buyPrice, err := q.BuyPrice(top.Bid)
	if err != nil {
		return nil, err
	}

	sell := models.OfferOp{
		Selling: pair.Base,
		Buying:  pair.Counter,
		Amount:  q.SellingAmount.Round(models.Precision),
		Price:   q.SellPrice(top.Ask),
	}
	buy := models.OfferOp{
		Selling: pair.Counter,
		Buying:  pair.Base,
		Amount:  q.BuyAmount(top.Bid),
		Price:   buyPrice,
	}
	return []models.OfferOp{sell, buy}, nil
}

// CancelOps deletes every given offer, one operation each.
func CancelOps(offers []models.Offer) []models.OfferOp {
	ops := make([]models.OfferOp, 0, len(offers))
	for _, o := range offers {
		ops = append(ops, models.OfferOp{
			OfferID: o.ID,
			Selling: o.Selling,
			Buying:  o.Buying,
			Amount:  decimal.Zero,
			Price:   one,
		})
	}
	return ops
}
