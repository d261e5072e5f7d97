package horizon

import (
	"fmt"

	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/stellar/go/price"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

func buildOfferOp(op models.OfferOp) (*txnbuild.ManageSellOffer, error) {
	if op.Selling == op.Buying {
		return nil, fmt.Errorf("offer %d sells and buys %s", op.OfferID, op.Selling)
	}

	if op.IsDelete() {
		return &txnbuild.ManageSellOffer{
			Selling: txnAsset(op.Selling),
			Buying:  txnAsset(op.Buying),
			Amount:  "0",
			Price:   xdr.Price{N: 1, D: 1},
			OfferID: op.OfferID,
		}, nil
	}

	if !op.Amount.IsPositive() {
		return nil, fmt.Errorf("offer amount must be positive, got %s", op.Amount)
	}
	if !op.Price.IsPositive() {
		return nil, fmt.Errorf("offer price must be positive, got %s", op.Price)
	}

	p, err := price.Parse(op.Price.StringFixed(models.Precision))
	if err != nil {
		return nil, fmt.Errorf("parse price %s: %w", op.Price, err)
	}

	return &txnbuild.ManageSellOffer{
		Selling: txnAsset(op.Selling),
		Buying:  txnAsset(op.Buying),
		Amount:  op.Amount.StringFixed(models.Precision),
		Price:   p,
		OfferID: op.OfferID,
	}, nil
}

func txnAsset(a models.Asset) txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}
