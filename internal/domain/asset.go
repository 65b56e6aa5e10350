package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/stellar/go-stellar-sdk/strkey"
)

// AssetType represents the Stellar asset type classification.
type AssetType string

const (
	AssetTypeNative           AssetType = "native"
	AssetTypeCreditAlphanum4  AssetType = "credit_alphanum4"
	AssetTypeCreditAlphanum12 AssetType = "credit_alphanum12"
)

var assetCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,12}$`)

// Asset describes a Stellar asset. Native XLM is a singleton; credit assets
// are identified by (Code, Issuer).
type Asset struct {
	Code   string    `json:"code"`
	Issuer string    `json:"issuer,omitempty"`
	Type   AssetType `json:"type"`
}

// AssetKey is the composite identity of an asset, usable as a map key.
// Native XLM has an empty key.
type AssetKey struct {
	Code   string
	Issuer string
}

// IsNative returns true if this asset is the native XLM.
func (a Asset) IsNative() bool {
	return a.Type == AssetTypeNative
}

// Key returns the composite map key for the asset.
func (a Asset) Key() AssetKey {
	if a.IsNative() {
		return AssetKey{}
	}
	return AssetKey{Code: a.Code, Issuer: a.Issuer}
}

// Equal compares assets by identity: (code, issuer) for credits, type for native.
func (a Asset) Equal(b Asset) bool {
	if a.IsNative() || b.IsNative() {
		return a.IsNative() && b.IsNative()
	}
	return a.Code == b.Code && a.Issuer == b.Issuer
}

// Canonical returns a canonical string representation: "native" for XLM, "CODE:ISSUER" for credits.
func (a Asset) Canonical() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

func (a Asset) String() string {
	if a.IsNative() {
		return "XLM"
	}
	return a.Canonical()
}

// Validate checks code length/charset and the issuer's strkey checksum.
func (a Asset) Validate() error {
	if a.IsNative() {
		return nil
	}
	if !assetCodePattern.MatchString(a.Code) {
		return fmt.Errorf("%w: asset code %q must be 1-12 alphanumeric characters", ErrInvalidIntent, a.Code)
	}
	if !strkey.IsValidEd25519PublicKey(a.Issuer) {
		return fmt.Errorf("%w: asset issuer %q is not a valid account address", ErrInvalidIntent, a.Issuer)
	}
	return nil
}

// UnmarshalJSON accepts {"code","issuer"} objects or "CODE:ISSUER" strings.
// The type is always derived from the code.
func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "native" || s == "XLM" {
			*a = NativeAsset()
			return nil
		}
		code, issuer, _ := strings.Cut(s, ":")
		*a = NewAsset(code, issuer)
		return nil
	}

	type plain Asset
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Type == AssetTypeNative {
		*a = NativeAsset()
		return nil
	}
	*a = NewAsset(p.Code, p.Issuer)
	return nil
}

// AssetTypeFromCode determines the Stellar asset type from the code string.
func AssetTypeFromCode(code string) AssetType {
	if code == "XLM" || code == "native" {
		return AssetTypeNative
	}
	if len(code) <= 4 {
		return AssetTypeCreditAlphanum4
	}
	return AssetTypeCreditAlphanum12
}

// NewAsset creates an Asset with the correct type inferred from the code.
// A code with an issuer is always a credit asset, even "XLM".
func NewAsset(code, issuer string) Asset {
	if issuer == "" && AssetTypeFromCode(code) == AssetTypeNative {
		return NativeAsset()
	}
	if len(code) <= 4 {
		return Asset{Code: code, Issuer: issuer, Type: AssetTypeCreditAlphanum4}
	}
	return Asset{Code: code, Issuer: issuer, Type: AssetTypeCreditAlphanum12}
}

// NativeAsset returns the Stellar native asset.
func NativeAsset() Asset {
	return Asset{Code: "XLM", Type: AssetTypeNative}
}

// ParseAsset parses "native", "XLM" or "CODE:ISSUER".
func ParseAsset(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Asset{}, fmt.Errorf("%w: asset is required", ErrInvalidIntent)
	}
	if s == "native" || s == "XLM" {
		return NativeAsset(), nil
	}
	code, issuer, ok := strings.Cut(s, ":")
	if !ok {
		return Asset{}, fmt.Errorf("%w: asset %q must be CODE:ISSUER", ErrInvalidIntent, s)
	}
	asset := NewAsset(code, issuer)
	if err := asset.Validate(); err != nil {
		return Asset{}, err
	}
	return asset, nil
}

// ValidateAccountAddress checks that addr is a G... account strkey.
func ValidateAccountAddress(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%w: account address is required", ErrInvalidIntent)
	}
	if !strkey.IsValidEd25519PublicKey(addr) {
		return fmt.Errorf("%w: %q is not a valid Stellar account address", ErrInvalidIntent, addr)
	}
	return nil
}
