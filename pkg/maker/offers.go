package maker

import (
	"fmt"

	"github.com/gregtusar/dexmaker/pkg/horizon"
	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/shopspring/decimal"
)

// ClassifyOffer reports which way an offer trades the pair's base asset.
// Offers on any other pair are rejected.
func ClassifyOffer(selling, buying models.Asset, pair models.Pair) (models.OfferSide, bool) {
	switch {
	case selling == pair.Base && buying == pair.Counter:
		return models.OfferSideSelling, true
	case selling == pair.Counter && buying == pair.Base:
		return models.OfferSideBuying, true
	default:
		return "", false
	}
}

// NormalizeOffers keeps the offers on pair and expresses them in base units.
// Buying offers carry a price in base per counter, so their price and amount
// are re-derived from the exact n/d ratio.
func NormalizeOffers(raw []models.RawOffer, pair models.Pair) ([]models.Offer, error) {
	offers := make([]models.Offer, 0, len(raw))
	for _, r := range raw {
		side, ok := ClassifyOffer(r.Selling, r.Buying, pair)
		if !ok {
			continue
		}

		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, horizon.Malformed("offers", fmt.Errorf("offer %d amount %q: %w", r.ID, r.Amount, err))
		}

		offer := models.Offer{
			ID:      r.ID,
			Side:    side,
			Selling: r.Selling,
			Buying:  r.Buying,
		}

		switch side {
		case models.OfferSideSelling:
			p, err := decimal.NewFromString(r.Price)
			if err != nil {
				return nil, horizon.Malformed("offers", fmt.Errorf("offer %d price %q: %w", r.ID, r.Price, err))
			}
			offer.Amount = amount.Round(models.Precision)
			offer.Price = p.Round(models.Precision)
		case models.OfferSideBuying:
			if r.PriceN <= 0 || r.PriceD <= 0 {
				return nil, horizon.Malformed("offers", fmt.Errorf("offer %d price ratio %d/%d", r.ID, r.PriceN, r.PriceD))
			}
			ratio := decimal.NewFromInt32(r.PriceD).Div(decimal.NewFromInt32(r.PriceN))
			offer.Price = ratio.Round(models.Precision)
			offer.Amount = amount.Div(ratio).Round(models.Precision)
		}

		offers = append(offers, offer)
	}
	return offers, nil
}

// FilterBalances keeps the native balance and the balances of the pair's
// assets, keyed by asset code.
func FilterBalances(balances []models.Balance, pair models.Pair) models.Balances {
	filtered := make(models.Balances)
	for _, b := range balances {
		switch {
		case b.Asset.IsNative():
			filtered[models.NativeCode] = b.Amount
		case b.Asset == pair.Base, b.Asset == pair.Counter:
			filtered[b.Asset.Code] = b.Amount
		}
	}
	return filtered
}
