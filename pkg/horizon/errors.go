package horizon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stellar/go/clients/horizonclient"
)

var (
	ErrEmptyOrderBook = errors.New("order book has no bids or asks")
	ErrMalformed      = errors.New("malformed ledger record")
)

type Kind int

const (
	// KindTransient errors may succeed when retried.
	KindTransient Kind = iota
	// KindPermanent errors will fail the same way on retry.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err, or anything it wraps, is a permanent
// ledger error. Unclassified errors are treated as transient.
func IsPermanent(err error) bool {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind == KindPermanent
	}
	return false
}

func Malformed(op string, err error) error {
	return &Error{Op: op, Kind: KindPermanent, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
}

var transientResultCodes = map[string]bool{
	"tx_bad_seq":          true,
	"tx_too_late":         true,
	"tx_insufficient_fee": true,
	"tx_internal_error":   true,
}

// Operation failures caused by the ledger moving under us, such as an offer
// filling before it could be deleted. The next cycle sees the new state.
var transientOpCodes = map[string]bool{
	"op_offer_not_found": true,
	"op_underfunded":     true,
	"op_cross_self":      true,
	"op_low_reserve":     true,
	"op_line_full":       true,
}

// stateDependent reports whether every failing operation in a tx_failed
// result failed for a transient reason.
func stateDependent(codes []string) bool {
	failed := 0
	for _, code := range codes {
		if code == "op_success" {
			continue
		}
		if !transientOpCodes[code] {
			return false
		}
		failed++
	}
	return failed > 0
}

func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	// anything that is not a Horizon problem document is a transport failure
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return &Error{Op: op, Kind: KindTransient, Err: err}
	}

	status := hErr.Problem.Status
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return &Error{Op: op, Kind: KindTransient, Err: describe(hErr)}
	}

	if codes, cerr := hErr.ResultCodes(); cerr == nil && codes != nil {
		if transientResultCodes[codes.TransactionCode] ||
			(codes.TransactionCode == "tx_failed" && stateDependent(codes.OperationCodes)) {
			return &Error{Op: op, Kind: KindTransient, Err: describe(hErr)}
		}
	}
	return &Error{Op: op, Kind: KindPermanent, Err: describe(hErr)}
}

func describe(hErr *horizonclient.Error) error {
	detail := hErr.Problem.Title
	if codes, err := hErr.ResultCodes(); err == nil && codes != nil {
		detail = fmt.Sprintf("%s: %s %v", detail, codes.TransactionCode, codes.OperationCodes)
	}
	return fmt.Errorf("horizon %d: %s: %w", hErr.Problem.Status, detail, hErr)
}
