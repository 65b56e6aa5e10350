package bridge

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stellar/go-stellar-sdk/strkey"

	"github.com/mtlprog/kosh/internal/domain"
)

// DefaultContractID is the bridge contract on testnet.
const DefaultContractID = "CDTA5IYGUGRI4PAGXJL7TPBEIC3EZY6V23ILF5EDVXFVLCGGMVOK4CRL"

// LockFunction is the contract entry point a bridge lock invokes.
const LockFunction = "lock"

// SourceToken is the only asset that can be locked on Stellar.
const SourceToken = "XLM"

var evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// AddressFormat names how a destination chain spells recipient addresses.
type AddressFormat string

const AddressFormatEVM AddressFormat = "evm"

// Chain is a supported destination chain.
type Chain struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Symbol        string        `json:"symbol"`
	Testnet       bool          `json:"testnet"`
	AddressFormat AddressFormat `json:"addressFormat"`
}

// Token is a destination token and the chains it can be released on.
type Token struct {
	Symbol string   `json:"symbol"`
	Name   string   `json:"name"`
	Chains []string `json:"chains"`
}

// FeeEstimate is the advisory cost of a lock.
type FeeEstimate struct {
	NetworkFee string `json:"networkFee"`
	BridgeFee  string `json:"bridgeFee"`
	TotalFee   string `json:"totalFee"`
}

var (
	defaultChains = []Chain{
		{ID: "17000", Name: "Holesky Testnet", Symbol: "ETH", Testnet: true, AddressFormat: AddressFormatEVM},
		{ID: "6565", Name: "Ethereum", Symbol: "ETH", AddressFormat: AddressFormatEVM},
		{ID: "6648", Name: "BSC", Symbol: "BNB", AddressFormat: AddressFormatEVM},
		{ID: "6550", Name: "Polygon", Symbol: "MATIC", AddressFormat: AddressFormatEVM},
		{ID: "6552", Name: "Avalanche", Symbol: "AVAX", AddressFormat: AddressFormatEVM},
		{ID: "6551", Name: "Arbitrum", Symbol: "ARB", AddressFormat: AddressFormatEVM},
		{ID: "6553", Name: "Optimism", Symbol: "OP", AddressFormat: AddressFormatEVM},
	}
	defaultTokens = []Token{
		{Symbol: "HOLSKEY", Name: "Holesky ETH", Chains: []string{"17000"}},
		{Symbol: "ETH", Name: "Ethereum", Chains: []string{"6565", "6551", "6553"}},
		{Symbol: "USDC", Name: "USD Coin", Chains: []string{"6565", "6648", "6550", "6552", "6551", "6553"}},
		{Symbol: "USDT", Name: "Tether", Chains: []string{"6565", "6648", "6550", "6552"}},
		{Symbol: "BNB", Name: "Binance Coin", Chains: []string{"6648"}},
		{Symbol: "MATIC", Name: "Polygon", Chains: []string{"6550"}},
		{Symbol: "AVAX", Name: "Avalanche", Chains: []string{"6552"}},
	}

	networkFee     = decimal.RequireFromString("0.00001")
	bridgeFeeRatio = decimal.RequireFromString("0.001")
)

// Registry knows the bridge contract, its destination chains and tokens.
type Registry struct {
	contractID string
	chains     map[string]Chain
	tokens     map[string]Token
}

// NewRegistry creates a registry for the given contract. An empty id uses DefaultContractID.
func NewRegistry(contractID string) (*Registry, error) {
	if contractID == "" {
		contractID = DefaultContractID
	}
	if _, err := strkey.Decode(strkey.VersionByteContract, contractID); err != nil {
		return nil, fmt.Errorf("invalid bridge contract id %q: %w", contractID, err)
	}
	return &Registry{
		contractID: contractID,
		chains:     lo.KeyBy(defaultChains, func(c Chain) string { return c.ID }),
		tokens:     lo.KeyBy(defaultTokens, func(t Token) string { return t.Symbol }),
	}, nil
}

// ContractID returns the bridge contract strkey (C...).
func (r *Registry) ContractID() string {
	return r.contractID
}

// Chains lists the destination chains, testnets first then by ID.
func (r *Registry) Chains() []Chain {
	out := lo.Values(r.chains)
	slices.SortFunc(out, func(a, b Chain) int {
		if a.Testnet != b.Testnet {
			if a.Testnet {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Chain looks up a destination chain.
func (r *Registry) Chain(id string) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// ChainName returns the display name, or "Chain <id>" when unknown.
func (r *Registry) ChainName(id string) string {
	if c, ok := r.chains[id]; ok {
		return c.Name
	}
	return "Chain " + id
}

// Tokens lists the destination tokens sorted by symbol.
func (r *Registry) Tokens() []Token {
	out := lo.Values(r.tokens)
	slices.SortFunc(out, func(a, b Token) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}

// TokensFor lists the destination tokens releasable on a chain.
func (r *Registry) TokensFor(chainID string) []Token {
	return lo.Filter(r.Tokens(), func(t Token, _ int) bool {
		return slices.Contains(t.Chains, chainID)
	})
}

// ValidateRecipient checks the recipient against the chain's address format.
func (r *Registry) ValidateRecipient(chainID, recipient string) error {
	chain, ok := r.chains[chainID]
	if !ok {
		return fmt.Errorf("%w: destination chain %s is not supported", domain.ErrInvalidIntent, chainID)
	}
	switch chain.AddressFormat {
	case AddressFormatEVM:
		if !evmAddressPattern.MatchString(recipient) || !common.IsHexAddress(recipient) {
			return fmt.Errorf("%w: invalid recipient address format for %s", domain.ErrInvalidIntent, chain.Name)
		}
	}
	return nil
}

// ValidateLock applies the intent's static checks plus chain, token and
// recipient rules. It makes no network calls.
func (r *Registry) ValidateLock(intent domain.BridgeLock) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if !strings.EqualFold(intent.FromToken, SourceToken) && intent.FromToken != "native" {
		return fmt.Errorf("%w: only %s can be bridged", domain.ErrInvalidIntent, SourceToken)
	}
	if _, ok := r.chains[intent.DestChain]; !ok {
		return fmt.Errorf("%w: destination chain %s is not supported", domain.ErrInvalidIntent, intent.DestChain)
	}
	token, ok := r.tokens[strings.ToUpper(intent.DestToken)]
	if !ok {
		return fmt.Errorf("%w: destination token %s is not supported", domain.ErrInvalidIntent, intent.DestToken)
	}
	if !slices.Contains(token.Chains, intent.DestChain) {
		return fmt.Errorf("%w: %s is not available on %s", domain.ErrInvalidIntent, token.Symbol, r.ChainName(intent.DestChain))
	}
	return r.ValidateRecipient(intent.DestChain, intent.RecipientAddress)
}

// EstimateFees returns the network fee plus the 0.1% bridge fee.
func (r *Registry) EstimateFees(amount string) (FeeEstimate, error) {
	a, err := domain.ParseAmount(amount)
	if err != nil {
		return FeeEstimate{}, err
	}
	bridgeFee := a.Mul(bridgeFeeRatio)
	return FeeEstimate{
		NetworkFee: networkFee.StringFixed(7),
		BridgeFee:  bridgeFee.StringFixed(7),
		TotalFee:   networkFee.Add(bridgeFee).StringFixed(7),
	}, nil
}
