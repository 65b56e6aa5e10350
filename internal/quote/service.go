package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon"
)

// DefaultCacheTTL bounds how long a quote is reused for display.
const DefaultCacheTTL = 10 * time.Second

// Service discovers strict-send conversion quotes from Horizon path finding.
// Routing quality is entirely the ledger's; the first record wins.
type Service struct {
	router *horizon.Router
	cache  *quoteCache
}

// NewService creates a quote service. A non-positive ttl disables caching.
func NewService(router *horizon.Router, ttl time.Duration) *Service {
	return &Service{
		router: router,
		cache:  newQuoteCache(ttl),
	}
}

// FindStrictSendQuote quotes sending sourceAmount XLM for destAsset.
// It returns nil, nil when the ledger knows no path; that is a liquidity
// outcome, not a failure. Transport faults wrap domain.ErrLedgerUnavailable.
func (s *Service) FindStrictSendQuote(ctx context.Context, sourceAmount string, destAsset domain.Asset, network domain.Network) (*domain.Quote, error) {
	amount, err := domain.ParseAmount(sourceAmount)
	if err != nil {
		return nil, err
	}
	if err := destAsset.Validate(); err != nil {
		return nil, err
	}
	if destAsset.IsNative() {
		return nil, fmt.Errorf("%w: destination asset must differ from XLM", domain.ErrInvalidIntent)
	}
	source := domain.NativeAsset()
	sendAmount := domain.TruncateAmount(amount)

	key := cacheKey{network: network, dest: destAsset.Key(), amount: sendAmount}
	if cached, ok := s.cache.get(key); ok {
		return &cached, nil
	}

	client, err := s.router.Client(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	records, err := client.FetchStrictSendPaths(ctx, source, sendAmount, destAsset)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("quote: path finding failed", "dest", destAsset.Canonical(), "amount", sendAmount, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}

	record, ok := lo.Find(records, func(r horizon.HorizonPathRecord) bool {
		return len(r.Path) <= domain.MaxPathLength && domain.SafeParse(r.DestinationAmount).IsPositive()
	})
	if !ok {
		slog.Info("quote: no path", "dest", destAsset.Canonical(), "amount", sendAmount, "network", network)
		return nil, nil
	}

	q := recordToQuote(record, source, sendAmount, destAsset)
	s.cache.set(key, q)
	return &q, nil
}

func recordToQuote(record horizon.HorizonPathRecord, source domain.Asset, sendAmount string, dest domain.Asset) domain.Quote {
	srcAmount := record.SourceAmount
	if domain.SafeParse(srcAmount).IsZero() {
		srcAmount = sendAmount
	}
	return domain.Quote{
		SourceAsset:       source,
		SourceAmount:      srcAmount,
		DestinationAsset:  dest,
		DestinationAmount: record.DestinationAmount,
		Rate:              domain.DivideWithPrecision(record.DestinationAmount, srcAmount),
		Path:              buildPath(record.Path),
	}
}

func buildPath(hops []horizon.HorizonPathAsset) []domain.Asset {
	return lo.Map(hops, func(h horizon.HorizonPathAsset, _ int) domain.Asset {
		if h.AssetType == string(domain.AssetTypeNative) {
			return domain.NativeAsset()
		}
		return domain.Asset{Code: h.AssetCode, Issuer: h.AssetIssuer, Type: domain.AssetType(h.AssetType)}
	})
}
