package horizon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gregtusar/dexmaker/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
)

const xcnIssuer = "GCNY5OXYSY4FKHOPT2SPOQZAOEIGXB5LBYW3HVU3OWSTQITS65M5RCNY"

var testPair = models.Pair{
	Base:    models.NativeAsset(),
	Counter: models.IssuedAsset("XCN", xcnIssuer),
}

// fakeHorizon answers the handful of Horizon endpoints the client uses.
type fakeHorizon struct {
	t       *testing.T
	address string

	mu         sync.Mutex
	baseURL    string
	orderBook  string
	offers     string
	offerPages map[string]string
	submitCode int
	submitBody string
	submitted  []string
	orderQuery string
}

func newFakeHorizon(t *testing.T, address string) *fakeHorizon {
	return &fakeHorizon{
		t:       t,
		address: address,
		orderBook: `{
			"bids": [{"price_r": {"n": 3, "d": 2}, "price": "1.5000000", "amount": "100.0000000"}],
			"asks": [{"price_r": {"n": 8, "d": 5}, "price": "1.6000000", "amount": "50.0000000"}],
			"base": {"asset_type": "native"},
			"counter": {"asset_type": "credit_alphanum4", "asset_code": "XCN", "asset_issuer": "` + xcnIssuer + `"}
		}`,
		offers:     `{"_embedded": {"records": []}}`,
		submitCode: http.StatusOK,
		submitBody: `{"hash": "abc123", "ledger": 4242, "successful": true}`,
	}
}

func (f *fakeHorizon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/order_book":
		f.orderQuery = r.URL.RawQuery
		writeBody(w, http.StatusOK, f.orderBook)
	case strings.HasSuffix(r.URL.Path, "/offers"):
		if f.offerPages != nil {
			writeBody(w, http.StatusOK, f.offerPages[r.URL.Query().Get("cursor")])
			return
		}
		writeBody(w, http.StatusOK, f.offers)
	case r.URL.Path == "/accounts/"+f.address:
		writeBody(w, http.StatusOK, fmt.Sprintf(`{
			"id": %[1]q,
			"account_id": %[1]q,
			"sequence": "1234",
			"subentry_count": 0,
			"thresholds": {"low_threshold": 0, "med_threshold": 0, "high_threshold": 0},
			"flags": {"auth_required": false, "auth_revocable": false},
			"balances": [
				{"balance": "5.0000000", "limit": "1000.0000000", "asset_type": "credit_alphanum4", "asset_code": "XCN", "asset_issuer": %[2]q},
				{"balance": "100.0000000", "asset_type": "native"}
			],
			"signers": [],
			"data": {}
		}`, f.address, xcnIssuer))
	case strings.HasPrefix(r.URL.Path, "/accounts/"):
		writeBody(w, http.StatusNotFound, `{
			"type": "https://stellar.org/horizon-errors/not_found",
			"title": "Resource Missing",
			"status": 404,
			"detail": "The resource at the url requested was not found."
		}`)
	case r.URL.Path == "/transactions" && r.Method == http.MethodPost:
		if err := r.ParseForm(); err != nil {
			f.t.Errorf("parse form: %v", err)
		}
		f.submitted = append(f.submitted, r.PostForm.Get("tx"))
		writeBody(w, f.submitCode, f.submitBody)
	default:
		http.NotFound(w, r)
	}
}

func writeBody(w http.ResponseWriter, status int, body string) {
	if status >= 400 {
		w.Header().Set("Content-Type", "application/problem+json")
	} else {
		w.Header().Set("Content-Type", "application/hal+json")
	}
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func newTestClient(t *testing.T) (*Client, *fakeHorizon, *keypair.Full) {
	t.Helper()

	kp := keypair.MustRandom()
	signer, err := NewSigner(kp.Seed())
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	fake := newFakeHorizon(t, kp.Address())
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	fake.baseURL = srv.URL

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client := NewClient(Options{
		HorizonURL: srv.URL,
		Passphrase: network.TestNetworkPassphrase,
	}, signer, logger)
	return client, fake, kp
}

func TestClient_TopOfBook(t *testing.T) {
	client, fake, _ := newTestClient(t)

	top, err := client.TopOfBook(context.Background(), testPair)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !top.Bid.Equal(decimal.RequireFromString("1.5")) || !top.Ask.Equal(decimal.RequireFromString("1.6")) {
		t.Fatalf("top of book mismatch: bid %s ask %s", top.Bid, top.Ask)
	}

	for _, want := range []string{"selling_asset_type=native", "buying_asset_code=XCN", "buying_asset_issuer=" + xcnIssuer} {
		if !strings.Contains(fake.orderQuery, want) {
			t.Fatalf("order book query %q missing %q", fake.orderQuery, want)
		}
	}
}

func TestClient_TopOfBookEmptySideIsTransient(t *testing.T) {
	client, fake, _ := newTestClient(t)
	fake.orderBook = `{"bids": [], "asks": [{"price_r": {"n": 8, "d": 5}, "price": "1.6000000", "amount": "1.0000000"}]}`

	_, err := client.TopOfBook(context.Background(), testPair)
	if !errors.Is(err, ErrEmptyOrderBook) {
		t.Fatalf("expected ErrEmptyOrderBook, got %v", err)
	}
	if IsPermanent(err) {
		t.Fatalf("an empty book should be retried")
	}
}

func TestClient_Balances(t *testing.T) {
	client, _, kp := newTestClient(t)

	balances, err := client.Balances(context.Background(), kp.Address())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	if balances[0].Asset != testPair.Counter || balances[0].Amount != "5.0000000" {
		t.Fatalf("issued balance mismatch: %+v", balances[0])
	}
	if balances[1].Asset != models.NativeAsset() || balances[1].Amount != "100.0000000" {
		t.Fatalf("native balance mismatch: %+v", balances[1])
	}
}

func TestClient_BalancesUnknownAccountIsPermanent(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.Balances(context.Background(), keypair.MustRandom().Address())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestClient_Offers(t *testing.T) {
	client, fake, kp := newTestClient(t)
	fake.offers = `{"_embedded": {"records": [
		{
			"id": "101", "paging_token": "101", "seller": "` + kp.Address() + `",
			"selling": {"asset_type": "native"},
			"buying": {"asset_type": "credit_alphanum4", "asset_code": "XCN", "asset_issuer": "` + xcnIssuer + `"},
			"amount": "10.0000000", "price_r": {"n": 204, "d": 125}, "price": "1.6320000",
			"last_modified_ledger": 1
		},
		{
			"id": "102", "paging_token": "102", "seller": "` + kp.Address() + `",
			"selling": {"asset_type": "credit_alphanum4", "asset_code": "XCN", "asset_issuer": "` + xcnIssuer + `"},
			"buying": {"asset_type": "native"},
			"amount": "14.7000000", "price_r": {"n": 125, "d": 204}, "price": "0.6127451",
			"last_modified_ledger": 1
		}
	]}}`

	offers, err := client.Offers(context.Background(), kp.Address())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}

	sell, buy := offers[0], offers[1]
	if sell.ID != 101 || sell.Selling != testPair.Base || sell.Buying != testPair.Counter {
		t.Fatalf("sell offer mismatch: %+v", sell)
	}
	if sell.PriceN != 204 || sell.PriceD != 125 || sell.Price != "1.6320000" {
		t.Fatalf("sell price mismatch: %+v", sell)
	}
	if buy.ID != 102 || buy.Selling != testPair.Counter || buy.Buying != testPair.Base {
		t.Fatalf("buy offer mismatch: %+v", buy)
	}
}

func offerRecord(id int64, seller string) string {
	return fmt.Sprintf(`{
		"id": "%[1]d", "paging_token": "%[1]d", "seller": %[2]q,
		"selling": {"asset_type": "native"},
		"buying": {"asset_type": "credit_alphanum4", "asset_code": "XCN", "asset_issuer": %[3]q},
		"amount": "1.0000000", "price_r": {"n": 2, "d": 1}, "price": "2.0000000",
		"last_modified_ledger": 1
	}`, id, seller, xcnIssuer)
}

func TestClient_OffersFollowsPages(t *testing.T) {
	client, fake, kp := newTestClient(t)
	client.offersLimit = 2

	next := func(cursor string) string {
		return fmt.Sprintf(`"_links": {"next": {"href": "%s/accounts/%s/offers?cursor=%s&limit=2&order=asc"}}`,
			fake.baseURL, kp.Address(), cursor)
	}
	fake.offerPages = map[string]string{
		"": `{` + next("202") + `, "_embedded": {"records": [` +
			offerRecord(201, kp.Address()) + `, ` + offerRecord(202, kp.Address()) + `]}}`,
		"202": `{` + next("203") + `, "_embedded": {"records": [` +
			offerRecord(203, kp.Address()) + `]}}`,
	}

	offers, err := client.Offers(context.Background(), kp.Address())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 3 {
		t.Fatalf("expected 3 offers across pages, got %d", len(offers))
	}
	if offers[2].ID != 203 {
		t.Fatalf("last offer should come from the second page, got %d", offers[2].ID)
	}
}

func TestClient_SubmitOffers(t *testing.T) {
	client, fake, kp := newTestClient(t)

	ops := []models.OfferOp{
		{
			Selling: testPair.Base,
			Buying:  testPair.Counter,
			Amount:  decimal.RequireFromString("10"),
			Price:   decimal.RequireFromString("1.632"),
		},
		{
			OfferID: 77,
			Selling: testPair.Counter,
			Buying:  testPair.Base,
			Amount:  decimal.Zero,
			Price:   decimal.NewFromInt(1),
		},
	}

	sub, err := client.SubmitOffers(context.Background(), ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Hash != "abc123" || sub.Ledger != 4242 || sub.Operations != 2 {
		t.Fatalf("submission mismatch: %+v", sub)
	}

	if len(fake.submitted) != 1 {
		t.Fatalf("expected 1 submitted transaction, got %d", len(fake.submitted))
	}
	generic, err := txnbuild.TransactionFromXDR(fake.submitted[0])
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		t.Fatalf("expected a plain transaction")
	}

	if got := tx.SourceAccount().AccountID; got != kp.Address() {
		t.Fatalf("source mismatch: got %s want %s", got, kp.Address())
	}
	if got := tx.SourceAccount().Sequence; got != 1235 {
		t.Fatalf("sequence mismatch: got %d want 1235", got)
	}
	if len(tx.Signatures()) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(tx.Signatures()))
	}

	txOps := tx.Operations()
	if len(txOps) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(txOps))
	}
	create, ok := txOps[0].(*txnbuild.ManageSellOffer)
	if !ok {
		t.Fatalf("operation 0 is %T", txOps[0])
	}
	if create.Amount != "10.0000000" || create.OfferID != 0 {
		t.Fatalf("create op mismatch: amount %s id %d", create.Amount, create.OfferID)
	}
	if create.Price.N != 204 || create.Price.D != 125 {
		t.Fatalf("create price mismatch: %d/%d", create.Price.N, create.Price.D)
	}

	del, ok := txOps[1].(*txnbuild.ManageSellOffer)
	if !ok {
		t.Fatalf("operation 1 is %T", txOps[1])
	}
	if del.OfferID != 77 || del.Amount != "0.0000000" {
		t.Fatalf("delete op mismatch: amount %s id %d", del.Amount, del.OfferID)
	}
}

func txFailed(opCodes ...string) string {
	quoted := make([]string, len(opCodes))
	for i, code := range opCodes {
		quoted[i] = fmt.Sprintf("%q", code)
	}
	return `{"type": "https://stellar.org/horizon-errors/transaction_failed", "title": "Transaction Failed",
		"status": 400, "extras": {"result_codes": {"transaction": "tx_failed", "operations": [` +
		strings.Join(quoted, ", ") + `]}}}`
}

func TestClient_CancelOfFilledOfferIsTransient(t *testing.T) {
	client, fake, _ := newTestClient(t)
	fake.submitCode = http.StatusBadRequest
	fake.submitBody = txFailed("op_offer_not_found")

	_, err := client.SubmitOffers(context.Background(), []models.OfferOp{{
		OfferID: 77,
		Selling: testPair.Base,
		Buying:  testPair.Counter,
	}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsPermanent(err) {
		t.Fatalf("a vanished offer should be retried, got %v", err)
	}
}

func TestClient_SubmitOffersErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{
			name:   "bad sequence",
			status: http.StatusBadRequest,
			body: `{"type": "https://stellar.org/horizon-errors/transaction_failed", "title": "Transaction Failed",
				"status": 400, "extras": {"result_codes": {"transaction": "tx_bad_seq"}}}`,
			permanent: false,
		},
		{
			name:      "offer not found",
			status:    http.StatusBadRequest,
			body:      txFailed("op_offer_not_found"),
			permanent: false,
		},
		{
			name:      "underfunded",
			status:    http.StatusBadRequest,
			body:      txFailed("op_underfunded"),
			permanent: false,
		},
		{
			name:      "cross self",
			status:    http.StatusBadRequest,
			body:      txFailed("op_cross_self"),
			permanent: false,
		},
		{
			name:      "low reserve",
			status:    http.StatusBadRequest,
			body:      txFailed("op_low_reserve"),
			permanent: false,
		},
		{
			name:      "line full",
			status:    http.StatusBadRequest,
			body:      txFailed("op_line_full"),
			permanent: false,
		},
		{
			name:      "stale cancel alongside a successful op",
			status:    http.StatusBadRequest,
			body:      txFailed("op_success", "op_offer_not_found"),
			permanent: false,
		},
		{
			name:      "no trustline",
			status:    http.StatusBadRequest,
			body:      txFailed("op_sell_no_trust"),
			permanent: true,
		},
		{
			name:      "malformed op next to an underfunded one",
			status:    http.StatusBadRequest,
			body:      txFailed("op_underfunded", "op_malformed"),
			permanent: true,
		},
		{
			name:   "bad auth",
			status: http.StatusBadRequest,
			body: `{"type": "https://stellar.org/horizon-errors/transaction_failed", "title": "Transaction Failed",
				"status": 400, "extras": {"result_codes": {"transaction": "tx_bad_auth"}}}`,
			permanent: true,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"type": "https://stellar.org/horizon-errors/rate_limit_exceeded", "title": "Rate Limit Exceeded", "status": 429}`,
			permanent: false,
		},
		{
			name:      "unavailable",
			status:    http.StatusServiceUnavailable,
			body:      `{"type": "https://stellar.org/horizon-errors/service_unavailable", "title": "Service Unavailable", "status": 503}`,
			permanent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake, _ := newTestClient(t)
			fake.submitCode = tt.status
			fake.submitBody = tt.body

			ops := []models.OfferOp{{
				Selling: testPair.Base,
				Buying:  testPair.Counter,
				Amount:  decimal.NewFromInt(1),
				Price:   decimal.NewFromInt(2),
			}}

			_, err := client.SubmitOffers(context.Background(), ops)
			if err == nil {
				t.Fatalf("expected error")
			}
			var lerr *Error
			if !errors.As(err, &lerr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if IsPermanent(err) != tt.permanent {
				t.Fatalf("permanent mismatch: got %v want %v (%v)", IsPermanent(err), tt.permanent, err)
			}
		})
	}
}

func TestClient_TransportFailureIsTransient(t *testing.T) {
	client, _, _ := newTestClient(t)
	client.horizon.HorizonURL = "http://127.0.0.1:1/"

	_, err := client.TopOfBook(context.Background(), testPair)
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsPermanent(err) {
		t.Fatalf("transport failures should be retried, got %v", err)
	}
}

func TestClient_SubmitOffersRejectsEmpty(t *testing.T) {
	client, fake, _ := newTestClient(t)

	if _, err := client.SubmitOffers(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
	if len(fake.submitted) != 0 {
		t.Fatalf("nothing should reach Horizon")
	}
}
