package maker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gregtusar/dexmaker/pkg/horizon"
	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/sirupsen/logrus"
)

type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

type Config struct {
	Pair         models.Pair
	Quote        Quote
	PollInterval time.Duration
	Retry        RetryPolicy
}

// Snapshot is the market maker's last observed view of the ledger.
type Snapshot struct {
	Address        string             `json:"address"`
	Pair           models.Pair        `json:"pair"`
	Balances       models.Balances    `json:"balances"`
	TopOfBook      *models.TopOfBook  `json:"top_of_book,omitempty"`
	Offers         []models.Offer     `json:"offers"`
	LastSubmission *models.Submission `json:"last_submission,omitempty"`
	Cycles         uint64             `json:"cycles"`
	LastError      string             `json:"last_error,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type MarketMaker struct {
	ledger    horizon.Ledger
	address   string
	cfg       Config
	metrics   *Metrics
	logger    *logrus.Logger
	observers []Observer
	state     Snapshot
	mu        sync.RWMutex
}

func NewMarketMaker(ledger horizon.Ledger, address string, cfg Config, metrics *Metrics, logger *logrus.Logger) *MarketMaker {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &MarketMaker{
		ledger:  ledger,
		address: address,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		state: Snapshot{
			Address:  address,
			Pair:     cfg.Pair,
			Balances: models.Balances{},
			Offers:   []models.Offer{},
		},
	}
}

// AddObserver must be called before Run.
func (mm *MarketMaker) AddObserver(o Observer) {
	mm.observers = append(mm.observers, o)
}

// Run logs the account, cancels any offers left on the pair and then keeps
// one sell and one buy offer resting until ctx is cancelled. Transient ledger
// errors are retried with backoff; a permanent error is returned.
func (mm *MarketMaker) Run(ctx context.Context) error {
	mm.logger.WithFields(logrus.Fields{
		"address": mm.address,
		"pair":    mm.cfg.Pair.String(),
	}).Info("Starting market maker")

	if err := mm.retry(ctx, mm.startup); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for ctx.Err() == nil {
		cycleID := uuid.NewString()
		mm.metrics.Cycles.Inc()
		mm.mu.Lock()
		mm.state.Cycles++
		mm.mu.Unlock()

		var resting bool
		err := mm.retry(ctx, func(ctx context.Context) error {
			var err error
			resting, err = mm.cycle(ctx, cycleID)
			return err
		})
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			return err
		}

		if resting {
			select {
			case <-ctx.Done():
			case <-time.After(mm.cfg.PollInterval):
			}
		}
	}

	mm.logger.Info("Market maker stopped")
	return nil
}

func (mm *MarketMaker) startup(ctx context.Context) error {
	balances, err := mm.Balances(ctx)
	if err != nil {
		return err
	}
	mm.logger.WithFields(balanceFields(balances)).Info("Account balances")

	return mm.CancelAllOffers(ctx)
}

// cycle reports whether offers are resting on the book. When none are, it
// replaces them. Retries of one loop iteration share cycleID.
func (mm *MarketMaker) cycle(ctx context.Context, cycleID string) (bool, error) {
	logger := mm.logger.WithField("cycle_id", cycleID)

	offers, err := mm.OpenOffers(ctx)
	if err != nil {
		return false, err
	}
	if len(offers) > 0 {
		logger.WithField("open_offers", len(offers)).Debug("Offers resting")
		return true, nil
	}

	// offers is empty here, so this submits nothing
	if err := mm.cancelOffers(ctx, offers); err != nil {
		return false, err
	}

	if err := mm.CreateOffers(ctx); err != nil {
		return false, err
	}
	logger.Info("New offers created")

	// best effort, the offers are already submitted
	created, err := mm.OpenOffers(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to read back created offers")
	}
	for _, o := range created {
		logger.WithFields(logrus.Fields{
			"offer_id": o.ID,
			"side":     o.Side,
		}).Info(o.Describe(mm.cfg.Pair))
	}

	mm.publish(Event{
		Type:    EventOffersCreated,
		CycleID: cycleID,
		Offers:  created,
	})
	return false, nil
}

// GetPrice returns the best bid and ask for the configured pair.
func (mm *MarketMaker) GetPrice(ctx context.Context) (*models.TopOfBook, error) {
	top, err := mm.ledger.TopOfBook(ctx, mm.cfg.Pair)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}

	bid, _ := top.Bid.Float64()
	ask, _ := top.Ask.Float64()
	mm.metrics.Bid.Set(bid)
	mm.metrics.Ask.Set(ask)

	mm.mu.Lock()
	mm.state.TopOfBook = top
	mm.state.UpdatedAt = time.Now()
	mm.mu.Unlock()
	return top, nil
}

// Balances returns the native balance and the balances of the pair's assets.
func (mm *MarketMaker) Balances(ctx context.Context) (models.Balances, error) {
	raw, err := mm.ledger.Balances(ctx, mm.address)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	balances := FilterBalances(raw, mm.cfg.Pair)

	mm.mu.Lock()
	mm.state.Balances = balances
	mm.state.UpdatedAt = time.Now()
	mm.mu.Unlock()
	return balances, nil
}

// OpenOffers returns the account's open offers on the configured pair.
func (mm *MarketMaker) OpenOffers(ctx context.Context) ([]models.Offer, error) {
	raw, err := mm.ledger.Offers(ctx, mm.address)
	if err != nil {
		return nil, fmt.Errorf("get offers: %w", err)
	}
	offers, err := NormalizeOffers(raw, mm.cfg.Pair)
	if err != nil {
		return nil, err
	}

	mm.metrics.OpenOffers.Set(float64(len(offers)))
	mm.mu.Lock()
	mm.state.Offers = offers
	mm.state.UpdatedAt = time.Now()
	mm.mu.Unlock()
	return offers, nil
}

// CancelAllOffers deletes every open offer on the configured pair in one
// transaction. With nothing open it submits nothing.
func (mm *MarketMaker) CancelAllOffers(ctx context.Context) error {
	offers, err := mm.OpenOffers(ctx)
	if err != nil {
		return err
	}
	return mm.cancelOffers(ctx, offers)
}

func (mm *MarketMaker) cancelOffers(ctx context.Context, offers []models.Offer) error {
	ops := CancelOps(offers)
	if len(ops) == 0 {
		return nil
	}

	sub, err := mm.submit(ctx, ops)
	if err != nil {
		return fmt.Errorf("cancel offers: %w", err)
	}
	mm.metrics.OffersCancelled.Add(float64(len(ops)))
	mm.logger.WithFields(logrus.Fields{
		"cancelled": len(ops),
		"hash":      sub.Hash,
	}).Info("Offers cancelled")

	mm.publish(Event{Type: EventOffersCancelled, Offers: offers, Submission: sub})
	return nil
}

// CreateOffers places a sell offer above the best ask and a buy offer below
// the best bid in one transaction.
func (mm *MarketMaker) CreateOffers(ctx context.Context) error {
	top, err := mm.GetPrice(ctx)
	if err != nil {
		return err
	}

	ops, err := mm.cfg.Quote.Offers(mm.cfg.Pair, *top)
	if err != nil {
		return fmt.Errorf("create offers: %w", err)
	}

	if _, err := mm.submit(ctx, ops); err != nil {
		return fmt.Errorf("create offers: %w", err)
	}
	mm.metrics.OffersCreated.Add(float64(len(ops)))
	return nil
}

func (mm *MarketMaker) submit(ctx context.Context, ops []models.OfferOp) (*models.Submission, error) {
	sub, err := mm.ledger.SubmitOffers(ctx, ops)
	if err != nil {
		return nil, err
	}
	mm.metrics.Submissions.Inc()

	mm.mu.Lock()
	mm.state.LastSubmission = sub
	mm.state.UpdatedAt = time.Now()
	mm.mu.Unlock()
	return sub, nil
}

func (mm *MarketMaker) Snapshot() Snapshot {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	snap := mm.state
	snap.Offers = append([]models.Offer(nil), mm.state.Offers...)
	snap.Balances = make(models.Balances, len(mm.state.Balances))
	for k, v := range mm.state.Balances {
		snap.Balances[k] = v
	}
	return snap
}

func (mm *MarketMaker) retry(ctx context.Context, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if mm.cfg.Retry.InitialInterval > 0 {
		b.InitialInterval = mm.cfg.Retry.InitialInterval
	}
	if mm.cfg.Retry.MaxInterval > 0 {
		b.MaxInterval = mm.cfg.Retry.MaxInterval
	}
	if mm.cfg.Retry.Multiplier >= 1 {
		b.Multiplier = mm.cfg.Retry.Multiplier
	}
	b.MaxElapsedTime = 0

	operation := func() error {
		err := fn(ctx)
		switch {
		case err == nil:
			mm.recordError(nil)
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case horizon.IsPermanent(err):
			mm.metrics.Errors.WithLabelValues(horizon.KindPermanent.String()).Inc()
			mm.recordError(err)
			mm.logger.WithError(err).Error("Permanent error, stopping")
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	notify := func(err error, next time.Duration) {
		mm.metrics.Errors.WithLabelValues(horizon.KindTransient.String()).Inc()
		mm.recordError(err)
		mm.logger.WithError(err).WithField("retry_in", next.String()).Warn("Transient error, retrying")
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}

func (mm *MarketMaker) recordError(err error) {
	mm.mu.Lock()
	if err == nil {
		mm.state.LastError = ""
		mm.mu.Unlock()
		return
	}
	mm.state.LastError = err.Error()
	mm.state.UpdatedAt = time.Now()
	mm.mu.Unlock()

	mm.publish(Event{Type: EventError, Error: err.Error()})
}

func balanceFields(balances models.Balances) logrus.Fields {
	fields := make(logrus.Fields, len(balances))
	for code, amount := range balances {
		fields[code] = amount
	}
	return fields
}
