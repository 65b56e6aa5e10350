package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon"
)

// Reader fetches account state from Horizon. It has no side effects.
type Reader struct {
	router *horizon.Router
	now    func() time.Time
}

// NewReader creates a new ledger reader.
func NewReader(router *horizon.Router) *Reader {
	return &Reader{router: router, now: time.Now}
}

// AccountAssets is the advisory asset listing of an account.
type AccountAssets struct {
	Success bool             `json:"success"`
	Address string           `json:"address"`
	Network domain.Network   `json:"network"`
	Assets  []domain.Balance `json:"assets"`
	Error   string           `json:"error,omitempty"`
}

// GetAccountSnapshot fetches the account's current sequence number and balances.
// It fails with domain.ErrAccountNotFound for an unfunded address and with
// domain.ErrLedgerUnavailable on any other failure.
func (r *Reader) GetAccountSnapshot(ctx context.Context, address string, network domain.Network) (domain.AccountSnapshot, error) {
	if err := domain.ValidateAccountAddress(address); err != nil {
		return domain.AccountSnapshot{}, err
	}

	client, err := r.router.Client(network)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	account, err := client.FetchAccount(ctx, address)
	if err != nil {
		if horizon.IsNotFound(err) {
			return domain.AccountSnapshot{}, fmt.Errorf("%w: %s on %s", domain.ErrAccountNotFound, address, network)
		}
		slog.Warn("ledger: account fetch failed", "address", address, "network", network, "error", err)
		return domain.AccountSnapshot{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	seq, err := strconv.ParseInt(account.Sequence, 10, 64)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("%w: parsing sequence %q: %v", domain.ErrLedgerUnavailable, account.Sequence, err)
	}

	return domain.AccountSnapshot{
		Address:        address,
		Network:        network,
		SequenceNumber: seq,
		SubentryCount:  account.SubentryCount,
		Balances:       convertBalances(account.Balances),
		FetchedAt:      r.now().UTC(),
	}, nil
}

// GetAccountAssets is the non-throwing view of GetAccountSnapshot used for
// asset listings. An unfunded account yields Success=false with a message.
func (r *Reader) GetAccountAssets(ctx context.Context, address string, network domain.Network) (AccountAssets, error) {
	out := AccountAssets{Address: address, Network: network, Assets: []domain.Balance{}}

	snap, err := r.GetAccountSnapshot(ctx, address, network)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		out.Error = "account not found: fund it with at least 1 XLM to activate it"
		return out, nil
	case errors.Is(err, domain.ErrInvalidIntent):
		out.Error = err.Error()
		return out, nil
	case err != nil:
		return AccountAssets{}, err
	}

	out.Success = true
	out.Assets = snap.Balances
	return out, nil
}

// convertBalances keeps native and credit lines in ledger order.
// Liquidity pool shares carry no asset identity and are skipped.
func convertBalances(in []horizon.HorizonBalance) []domain.Balance {
	lines := lo.Filter(in, func(b horizon.HorizonBalance, _ int) bool {
		return b.LiquidityPoolID == "" && b.AssetType != "liquidity_pool_shares"
	})
	return lo.Map(lines, func(b horizon.HorizonBalance, _ int) domain.Balance {
		if b.AssetType == string(domain.AssetTypeNative) {
			return domain.Balance{
				AssetType:    domain.AssetTypeNative,
				Amount:       b.Balance,
				IsAuthorized: true,
			}
		}
		return domain.Balance{
			AssetType:    domain.AssetType(b.AssetType),
			AssetCode:    b.AssetCode,
			AssetIssuer:  b.AssetIssuer,
			Amount:       b.Balance,
			Limit:        b.Limit,
			IsAuthorized: b.IsAuthorized == nil || *b.IsAuthorized,
		}
	})
}
