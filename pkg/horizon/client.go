package horizon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"golang.org/x/time/rate"
)

const offersPageLimit = 200

// Ledger is the slice of Horizon the market maker needs.
type Ledger interface {
	TopOfBook(ctx context.Context, pair models.Pair) (*models.TopOfBook, error)
	Balances(ctx context.Context, address string) ([]models.Balance, error)
	Offers(ctx context.Context, address string) ([]models.RawOffer, error)
	SubmitOffers(ctx context.Context, ops []models.OfferOp) (*models.Submission, error)
}

type Options struct {
	HorizonURL        string
	Passphrase        string
	BaseFee           int64
	TxTimeout         time.Duration
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	horizon     *horizonclient.Client
	signer      *Signer
	passphrase  string
	baseFee     int64
	txTimeout   time.Duration
	offersLimit uint
	limiter     *rate.Limiter
	logger      *logrus.Logger
}

var _ Ledger = (*Client)(nil)

func NewClient(opts Options, signer *Signer, logger *logrus.Logger) *Client {
	httpTimeout := opts.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	baseFee := opts.BaseFee
	if baseFee < txnbuild.MinBaseFee {
		baseFee = txnbuild.MinBaseFee
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		horizon: &horizonclient.Client{
			HorizonURL: opts.HorizonURL,
			HTTP:       &http.Client{Timeout: httpTimeout},
		},
		signer:      signer,
		passphrase:  opts.Passphrase,
		baseFee:     baseFee,
		txTimeout:   opts.TxTimeout,
		offersLimit: offersPageLimit,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}
}

func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Op: op, Kind: KindTransient, Err: err}
	}
	return nil
}

// TopOfBook returns the best bid and ask for base priced in counter.
func (c *Client) TopOfBook(ctx context.Context, pair models.Pair) (*models.TopOfBook, error) {
	if err := c.wait(ctx, "order_book"); err != nil {
		return nil, err
	}

	req := horizonclient.OrderBookRequest{
		SellingAssetType:   assetType(pair.Base),
		SellingAssetCode:   assetCode(pair.Base),
		SellingAssetIssuer: pair.Base.Issuer,
		BuyingAssetType:    assetType(pair.Counter),
		BuyingAssetCode:    assetCode(pair.Counter),
		BuyingAssetIssuer:  pair.Counter.Issuer,
		Limit:              1,
	}

	book, err := c.horizon.OrderBook(req)
	if err != nil {
		return nil, classify("order_book", err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, &Error{Op: "order_book", Kind: KindTransient, Err: ErrEmptyOrderBook}
	}

	bid, err := decimal.NewFromString(book.Bids[0].Price)
	if err != nil {
		return nil, Malformed("order_book", fmt.Errorf("bid price %q: %w", book.Bids[0].Price, err))
	}
	ask, err := decimal.NewFromString(book.Asks[0].Price)
	if err != nil {
		return nil, Malformed("order_book", fmt.Errorf("ask price %q: %w", book.Asks[0].Price, err))
	}

	return &models.TopOfBook{
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

func (c *Client) Balances(ctx context.Context, address string) ([]models.Balance, error) {
	account, err := c.account(ctx, address)
	if err != nil {
		return nil, err
	}

	balances := make([]models.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		if b.Type == "liquidity_pool_shares" {
			continue
		}
		balances = append(balances, models.Balance{
			Asset:  toAsset(b.Type, b.Code, b.Issuer),
			Amount: b.Balance,
		})
	}
	return balances, nil
}

// Offers returns every open offer of address, following Horizon's paging.
func (c *Client) Offers(ctx context.Context, address string) ([]models.RawOffer, error) {
	if err := c.wait(ctx, "offers"); err != nil {
		return nil, err
	}

	page, err := c.horizon.Offers(horizonclient.OfferRequest{
		ForAccount: address,
		Limit:      c.offersLimit,
	})
	if err != nil {
		return nil, classify("offers", err)
	}

	var offers []models.RawOffer
	for {
		for _, o := range page.Embedded.Records {
			offers = append(offers, models.RawOffer{
				ID:      o.ID,
				Selling: toAsset(o.Selling.Type, o.Selling.Code, o.Selling.Issuer),
				Buying:  toAsset(o.Buying.Type, o.Buying.Code, o.Buying.Issuer),
				Amount:  o.Amount,
				Price:   o.Price,
				PriceN:  o.PriceR.N,
				PriceD:  o.PriceR.D,
			})
		}
		if uint(len(page.Embedded.Records)) < c.offersLimit || page.Links.Next.Href == "" {
			break
		}

		if err := c.wait(ctx, "offers"); err != nil {
			return nil, err
		}
		page, err = c.horizon.NextOffersPage(page)
		if err != nil {
			return nil, classify("offers", err)
		}
	}

	if offers == nil {
		offers = []models.RawOffer{}
	}
	return offers, nil
}

// SubmitOffers bundles ops into one transaction signed by the configured
// account and submits it.
func (c *Client) SubmitOffers(ctx context.Context, ops []models.OfferOp) (*models.Submission, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("submit offers: no operations")
	}

	operations := make([]txnbuild.Operation, 0, len(ops))
	for _, op := range ops {
		built, err := buildOfferOp(op)
		if err != nil {
			return nil, &Error{Op: "build_transaction", Kind: KindPermanent, Err: err}
		}
		operations = append(operations, built)
	}

	account, err := c.account(ctx, c.signer.Address())
	if err != nil {
		return nil, err
	}

	timebounds := txnbuild.NewInfiniteTimeout()
	if c.txTimeout > 0 {
		timebounds = txnbuild.NewTimeout(int64(c.txTimeout / time.Second))
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        account,
		IncrementSequenceNum: true,
		Operations:           operations,
		BaseFee:              c.baseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: timebounds},
	})
	if err != nil {
		return nil, &Error{Op: "build_transaction", Kind: KindPermanent, Err: err}
	}

	tx, err = c.signer.Sign(tx, c.passphrase)
	if err != nil {
		return nil, &Error{Op: "sign_transaction", Kind: KindPermanent, Err: err}
	}

	if err := c.wait(ctx, "submit_transaction"); err != nil {
		return nil, err
	}

	resp, err := c.horizon.SubmitTransaction(tx)
	if err != nil {
		return nil, classify("submit_transaction", err)
	}

	c.logger.WithFields(logrus.Fields{
		"hash":       resp.Hash,
		"ledger":     resp.Ledger,
		"operations": len(ops),
	}).Debug("Transaction submitted")

	return &models.Submission{
		Hash:       resp.Hash,
		Ledger:     resp.Ledger,
		Operations: len(ops),
	}, nil
}

func (c *Client) account(ctx context.Context, address string) (*hProtocol.Account, error) {
	if err := c.wait(ctx, "account"); err != nil {
		return nil, err
	}

	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		return nil, classify("account", err)
	}
	return &account, nil
}

func toAsset(assetType, code, issuer string) models.Asset {
	if assetType == "native" {
		return models.NativeAsset()
	}
	return models.IssuedAsset(code, issuer)
}

func assetType(a models.Asset) horizonclient.AssetType {
	switch {
	case a.IsNative():
		return horizonclient.AssetTypeNative
	case len(a.Code) <= 4:
		return horizonclient.AssetType4
	default:
		return horizonclient.AssetType12
	}
}

func assetCode(a models.Asset) string {
	if a.IsNative() {
		return ""
	}
	return a.Code
}
