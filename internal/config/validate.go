package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/gregtusar/dexmaker/pkg/horizon"
	"github.com/gregtusar/dexmaker/pkg/maker"
	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/shopspring/decimal"
)

// Validate rejects settings the market maker cannot trade with.
func (c *Config) Validate() error {
	var errs []error

	if c.Stellar.Seed == "" {
		errs = append(errs, errors.New("stellar.seed is required (or set STELLAR_SEED)"))
	}
	if c.Stellar.HorizonURL == "" {
		errs = append(errs, errors.New("stellar.horizon_url is required"))
	}
	if _, err := horizon.NetworkPassphrase(c.Stellar.Network); err != nil {
		errs = append(errs, fmt.Errorf("stellar.network: %w", err))
	}

	if c.Market.BaseAsset.Code == "" {
		errs = append(errs, errors.New("market.base_asset.code is required"))
	}
	if c.Market.CounterAsset.Code == "" {
		errs = append(errs, errors.New("market.counter_asset.code is required"))
	}
	if pair := c.Pair(); pair.Base == pair.Counter {
		errs = append(errs, fmt.Errorf("market base and counter are both %s", pair.Base))
	}

	for name, rate := range map[string]float64{
		"market.buying_rate":  c.Market.BuyingRate,
		"market.selling_rate": c.Market.SellingRate,
	} {
		if rate < 0 || rate >= 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1), got %v", name, rate))
		}
	}
	for name, amount := range map[string]float64{
		"market.buying_amount":  c.Market.BuyingAmount,
		"market.selling_amount": c.Market.SellingAmount,
	} {
		if amount <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, amount))
		}
	}
	if c.Market.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("market.poll_interval must be positive, got %d", c.Market.PollInterval))
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Pair() models.Pair {
	return models.Pair{
		Base:    models.IssuedAsset(c.Market.BaseAsset.Code, c.Market.BaseAsset.Issuer),
		Counter: models.IssuedAsset(c.Market.CounterAsset.Code, c.Market.CounterAsset.Issuer),
	}
}

// MakerConfig converts the market settings for the market maker.
func (c *Config) MakerConfig() maker.Config {
	return maker.Config{
		Pair: c.Pair(),
		Quote: maker.Quote{
			SellingRate:   decimal.NewFromFloat(c.Market.SellingRate),
			SellingAmount: decimal.NewFromFloat(c.Market.SellingAmount),
			BuyingRate:    decimal.NewFromFloat(c.Market.BuyingRate),
			BuyingAmount:  decimal.NewFromFloat(c.Market.BuyingAmount),
		},
		PollInterval: time.Duration(c.Market.PollInterval) * time.Second,
		Retry: maker.RetryPolicy{
			InitialInterval: time.Duration(c.Retry.InitialIntervalMs) * time.Millisecond,
			MaxInterval:     time.Duration(c.Retry.MaxIntervalMs) * time.Millisecond,
			Multiplier:      c.Retry.Multiplier,
		},
	}
}

// HorizonOptions converts the ledger settings for the Horizon client.
func (c *Config) HorizonOptions() (horizon.Options, error) {
	passphrase, err := horizon.NetworkPassphrase(c.Stellar.Network)
	if err != nil {
		return horizon.Options{}, err
	}
	return horizon.Options{
		HorizonURL:        c.Stellar.HorizonURL,
		Passphrase:        passphrase,
		BaseFee:           c.Stellar.BaseFee,
		TxTimeout:         time.Duration(c.Stellar.TxTimeout) * time.Second,
		HTTPTimeout:       time.Duration(c.Stellar.HTTPTimeout) * time.Second,
		RequestsPerSecond: c.Stellar.RequestsPerSecond,
		Burst:             c.Stellar.Burst,
	}, nil
}
