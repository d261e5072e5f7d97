package models

import "fmt"

// NativeCode is the display code of the ledger's native asset.
const NativeCode = "XLM"

// Asset identifies a ledger asset. The zero Issuer marks the native asset,
// so two assets are the same asset exactly when they compare equal.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

func NativeAsset() Asset {
	return Asset{Code: NativeCode}
}

func IssuedAsset(code, issuer string) Asset {
	if issuer == "" {
		return NativeAsset()
	}
	return Asset{Code: code, Issuer: issuer}
}

func (a Asset) IsNative() bool {
	return a.Issuer == ""
}

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

// Pair is the traded pair; Base is quoted in units of Counter.
type Pair struct {
	Base    Asset `json:"base"`
	Counter Asset `json:"counter"`
}

func (p Pair) String() string {
	return p.Base.Code + "/" + p.Counter.Code
}
