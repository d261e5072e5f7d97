package horizon

import (
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
)

// NetworkPassphrase resolves a configured network name.
func NetworkPassphrase(name string) (string, error) {
	switch name {
	case "", "public", "pubnet":
		return network.PublicNetworkPassphrase, nil
	case "testnet", "test":
		return network.TestNetworkPassphrase, nil
	default:
		return "", fmt.Errorf("unknown network %q", name)
	}
}

// Signer holds the trading account's secret key. It never exposes the seed.
type Signer struct {
	kp *keypair.Full
}

func NewSigner(seed string) (*Signer, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		// the parse error may echo the input
		return nil, fmt.Errorf("invalid secret seed")
	}
	return &Signer{kp: kp}, nil
}

func (s *Signer) Address() string {
	return s.kp.Address()
}

func (s *Signer) Sign(tx *txnbuild.Transaction, passphrase string) (*txnbuild.Transaction, error) {
	return tx.Sign(passphrase, s.kp)
}

func (s *Signer) String() string {
	return s.Address()
}
