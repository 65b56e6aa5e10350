package domain

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Balance is one line item of an account: the native balance or a trustline.
type Balance struct {
	AssetType    AssetType `json:"assetType"`
	AssetCode    string    `json:"assetCode,omitempty"`
	AssetIssuer  string    `json:"assetIssuer,omitempty"`
	Amount       string    `json:"amount"`
	Limit        string    `json:"limit,omitempty"`
	IsAuthorized bool      `json:"isAuthorized"`
}

// Asset returns the asset the balance is held in.
func (b Balance) Asset() Asset {
	if b.AssetType == AssetTypeNative {
		return NativeAsset()
	}
	return Asset{Code: b.AssetCode, Issuer: b.AssetIssuer, Type: b.AssetType}
}

// AccountSnapshot is the ledger-observed state of one address at fetch time.
// Sequence numbers are single-use: a snapshot must be re-fetched before every build.
type AccountSnapshot struct {
	Address        string    `json:"address"`
	Network        Network   `json:"network"`
	SequenceNumber int64     `json:"sequenceNumber"`
	SubentryCount  int       `json:"subentryCount"`
	Balances       []Balance `json:"balances"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// NextSequence is the sequence number the next envelope built from this snapshot consumes.
func (s AccountSnapshot) NextSequence() int64 {
	return s.SequenceNumber + 1
}

// FindBalance returns the balance line for the asset, matched by (code, issuer).
func (s AccountSnapshot) FindBalance(asset Asset) (Balance, bool) {
	return lo.Find(s.Balances, func(b Balance) bool {
		return b.Asset().Equal(asset)
	})
}

// HasTrustline reports whether the account can hold the asset. Native needs no trustline.
func (s AccountSnapshot) HasTrustline(asset Asset) bool {
	if asset.IsNative() {
		return true
	}
	_, ok := s.FindBalance(asset)
	return ok
}

// NativeBalance returns the XLM balance, zero if absent.
func (s AccountSnapshot) NativeBalance() decimal.Decimal {
	b, ok := s.FindBalance(NativeAsset())
	if !ok {
		return decimal.Zero
	}
	return SafeParse(b.Amount)
}

// CreditBalances returns the non-native balance lines.
func (s AccountSnapshot) CreditBalances() []Balance {
	return lo.Filter(s.Balances, func(b Balance, _ int) bool {
		return b.AssetType != AssetTypeNative
	})
}
