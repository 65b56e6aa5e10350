package domain

import (
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/network"
)

// Network identifies the Stellar network a ledger call or envelope targets.
type Network string

const (
	NetworkTestnet Network = "testnet"
	NetworkMainnet Network = "mainnet"
)

const explorerBaseURL = "https://stellar.expert/explorer"

// ParseNetwork accepts the network names used by wallet frontends
// ("testnet", "mainnet", "stellar-mainnet", "public", ...).
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "testnet", "stellar-testnet", "test":
		return NetworkTestnet, nil
	case "mainnet", "stellar-mainnet", "public", "pubnet":
		return NetworkMainnet, nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

// Valid reports whether n is a known network.
func (n Network) Valid() bool {
	return n == NetworkTestnet || n == NetworkMainnet
}

// Passphrase returns the network passphrase envelopes are hashed with.
func (n Network) Passphrase() string {
	if n == NetworkMainnet {
		return network.PublicNetworkPassphrase
	}
	return network.TestNetworkPassphrase
}

// ExplorerTxURL returns the stellar.expert link for a transaction hash.
func (n Network) ExplorerTxURL(hash string) string {
	segment := "testnet"
	if n == NetworkMainnet {
		segment = "public"
	}
	return fmt.Sprintf("%s/%s/tx/%s", explorerBaseURL, segment, hash)
}

func (n Network) String() string { return string(n) }
