package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// IntentKind names the transaction a caller wants executed.
type IntentKind string

const (
	IntentNativePayment IntentKind = "native_payment"
	IntentPathPayment   IntentKind = "path_payment_strict_send"
	IntentChangeTrust   IntentKind = "change_trust"
	IntentBridgeLock    IntentKind = "bridge_lock"
)

// MaxPathLength is the most intermediate hops a path payment can carry.
const MaxPathLength = 5

// Intent is a validated-before-build request for one operation.
type Intent interface {
	Kind() IntentKind
	Validate() error
}

// NativePayment sends XLM to another account.
type NativePayment struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Memo        string `json:"memo,omitempty"`
}

func (NativePayment) Kind() IntentKind { return IntentNativePayment }

func (p NativePayment) Validate() error {
	if err := ValidateAccountAddress(p.Destination); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if _, err := ParseAmount(p.Amount); err != nil {
		return err
	}
	if len(p.Memo) > 28 {
		return fmt.Errorf("%w: memo exceeds 28 bytes", ErrInvalidIntent)
	}
	return nil
}

// PathPaymentStrictSend converts a fixed SendAmount of SendAsset into at least
// DestMin of DestAsset. An empty Destination pays the source account itself.
type PathPaymentStrictSend struct {
	Destination string  `json:"destination,omitempty"`
	SendAsset   Asset   `json:"sendAsset"`
	SendAmount  string  `json:"sendAmount"`
	DestAsset   Asset   `json:"destAsset"`
	DestMin     string  `json:"destMin"`
	Path        []Asset `json:"path,omitempty"`
}

func (PathPaymentStrictSend) Kind() IntentKind { return IntentPathPayment }

func (p PathPaymentStrictSend) Validate() error {
	if p.Destination != "" {
		if err := ValidateAccountAddress(p.Destination); err != nil {
			return fmt.Errorf("destination: %w", err)
		}
	}
	if err := p.SendAsset.Validate(); err != nil {
		return fmt.Errorf("send asset: %w", err)
	}
	if err := p.DestAsset.Validate(); err != nil {
		return fmt.Errorf("destination asset: %w", err)
	}
	if p.SendAsset.Equal(p.DestAsset) {
		return fmt.Errorf("%w: send and destination assets must differ", ErrInvalidIntent)
	}
	if _, err := ParseAmount(p.SendAmount); err != nil {
		return fmt.Errorf("send amount: %w", err)
	}
	if _, err := ParseAmount(p.DestMin); err != nil {
		return fmt.Errorf("destination minimum: %w", err)
	}
	if len(p.Path) > MaxPathLength {
		return fmt.Errorf("%w: path has %d hops, at most %d allowed", ErrInvalidIntent, len(p.Path), MaxPathLength)
	}
	for i, hop := range p.Path {
		if err := hop.Validate(); err != nil {
			return fmt.Errorf("path hop %d: %w", i, err)
		}
	}
	return nil
}

// ChangeTrust adds, updates or removes (Limit "0") a trustline.
type ChangeTrust struct {
	Asset Asset  `json:"asset"`
	Limit string `json:"limit"`
}

func (ChangeTrust) Kind() IntentKind { return IntentChangeTrust }

// IsRemoval reports whether the intent deletes the trustline. Only a limit
// that parses as exactly zero removes; malformed limits are left to Validate.
func (c ChangeTrust) IsRemoval() bool {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Limit))
	return err == nil && d.IsZero()
}

func (c ChangeTrust) Validate() error {
	if c.Asset.IsNative() {
		return fmt.Errorf("%w: native asset needs no trustline", ErrInvalidIntent)
	}
	if err := c.Asset.Validate(); err != nil {
		return err
	}
	if c.IsRemoval() {
		return nil
	}
	if _, err := ParseAmount(c.Limit); err != nil {
		return fmt.Errorf("limit: %w", err)
	}
	return nil
}

// BridgeLock escrows FromToken on Stellar so DestToken is released to
// RecipientAddress on DestChain. Recipient format is checked per chain by
// the bridge registry.
type BridgeLock struct {
	UserAddress      string `json:"userAddress"`
	FromToken        string `json:"fromToken"`
	DestToken        string `json:"destToken"`
	Amount           string `json:"amount"`
	DestChain        string `json:"destChain"`
	RecipientAddress string `json:"recipientAddress"`
}

func (BridgeLock) Kind() IntentKind { return IntentBridgeLock }

func (b BridgeLock) Validate() error {
	if err := ValidateAccountAddress(b.UserAddress); err != nil {
		return fmt.Errorf("user address: %w", err)
	}
	switch {
	case strings.TrimSpace(b.FromToken) == "":
		return fmt.Errorf("%w: source token is required", ErrInvalidIntent)
	case strings.TrimSpace(b.DestToken) == "":
		return fmt.Errorf("%w: destination token is required", ErrInvalidIntent)
	case strings.TrimSpace(b.DestChain) == "":
		return fmt.Errorf("%w: destination chain is required", ErrInvalidIntent)
	case strings.TrimSpace(b.RecipientAddress) == "":
		return fmt.Errorf("%w: recipient address is required", ErrInvalidIntent)
	}
	if _, err := ToStroops(b.Amount); err != nil {
		return err
	}
	return nil
}
