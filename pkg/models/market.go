package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimals the ledger keeps for amounts and prices.
const Precision = 7

type TopOfBook struct {
	Pair      Pair            `json:"pair"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
}

type Balance struct {
	Asset  Asset  `json:"asset"`
	Amount string `json:"amount"`
}

// Balances maps a display code to the balance amount as reported by the ledger.
type Balances map[string]string
