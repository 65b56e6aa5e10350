package trustline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/mtlprog/kosh/internal/domain"
)

// SnapshotReader fetches a fresh account snapshot.
type SnapshotReader interface {
	GetAccountSnapshot(ctx context.Context, address string, network domain.Network) (domain.AccountSnapshot, error)
}

// TrustlineCheck is the ledger-derived answer for one asset.
type TrustlineCheck struct {
	Asset        domain.Asset `json:"asset"`
	Exists       bool         `json:"exists"`
	Balance      string       `json:"balance,omitempty"`
	Limit        string       `json:"limit,omitempty"`
	IsAuthorized bool         `json:"isAuthorized"`
}

// Service gates swaps and bridges on trustline existence and tracks
// per-account trustline statuses.
type Service struct {
	reader SnapshotReader
	store  StatusStore
	group  singleflight.Group
	now    func() time.Time

	mu       sync.Mutex
	inflight map[Key]bool
}

// NewService creates a trustline gatekeeper. A nil store keeps statuses in memory.
func NewService(reader SnapshotReader, store StatusStore) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		reader:   reader,
		store:    store,
		now:      time.Now,
		inflight: make(map[Key]bool),
	}
}

// Evaluate derives trustline existence from a snapshot by (code, issuer).
// Native assets always exist.
func Evaluate(snap domain.AccountSnapshot, asset domain.Asset) TrustlineCheck {
	if asset.IsNative() {
		return TrustlineCheck{Asset: asset, Exists: true, Balance: snap.NativeBalance().String(), IsAuthorized: true}
	}
	b, ok := snap.FindBalance(asset)
	if !ok {
		return TrustlineCheck{Asset: asset}
	}
	return TrustlineCheck{
		Asset:        asset,
		Exists:       true,
		Balance:      b.Amount,
		Limit:        b.Limit,
		IsAuthorized: b.IsAuthorized,
	}
}

// CheckTrustline answers from a fresh ledger fetch, never from the cache.
// The observation is recorded for the account.
func (s *Service) CheckTrustline(ctx context.Context, address string, asset domain.Asset, network domain.Network) (TrustlineCheck, error) {
	if err := asset.Validate(); err != nil {
		return TrustlineCheck{}, err
	}
	snap, err := s.reader.GetAccountSnapshot(ctx, address, network)
	if err != nil {
		return TrustlineCheck{}, fmt.Errorf("checking trustline %s: %w", asset, err)
	}
	if !asset.IsNative() {
		s.ObserveSnapshot(snap, asset)
	}
	return Evaluate(snap, asset), nil
}

// Check runs the status machine for one asset: UNKNOWN -> CHECKING ->
// EXISTS | ABSENT. Concurrent checks of the same key share one fetch. A
// failed check leaves the status UNKNOWN, never ABSENT.
func (s *Service) Check(ctx context.Context, address string, asset domain.Asset, network domain.Network) (Status, error) {
	if asset.IsNative() {
		return Status{State: StateExists, UpdatedAt: s.now().UTC()}, nil
	}
	key := NewKey(network, address, asset)

	v, err, _ := s.group.Do(key.flightKey(), func() (any, error) {
		s.setInflight(key, true)
		defer s.setInflight(key, false)

		check, err := s.CheckTrustline(ctx, address, asset, network)
		if err != nil {
			if delErr := s.store.DeleteTrustline(key); delErr != nil {
				slog.Warn("trustline: failed to reset status", "asset", asset.Canonical(), "error", delErr)
			}
			return nil, err
		}
		return s.statusFor(check.Exists, false), nil
	})
	if err != nil {
		return Status{State: StateUnknown, UpdatedAt: s.now().UTC()}, err
	}
	return v.(Status), nil
}

// Status returns the cached status for UI display. It never touches the ledger.
func (s *Service) Status(address string, asset domain.Asset, network domain.Network) Status {
	if asset.IsNative() {
		return Status{State: StateExists}
	}
	key := NewKey(network, address, asset)

	s.mu.Lock()
	checking := s.inflight[key]
	s.mu.Unlock()
	if checking {
		return Status{State: StateChecking, UpdatedAt: s.now().UTC()}
	}

	st, ok, err := s.store.GetTrustline(key)
	if err != nil {
		slog.Warn("trustline: status lookup failed", "asset", asset.Canonical(), "error", err)
		return Status{State: StateUnknown}
	}
	if !ok {
		return Status{State: StateUnknown}
	}
	return st
}

// MarkCreated records an observed change-trust success optimistically.
// The next account fetch confirms or corrects it.
func (s *Service) MarkCreated(network domain.Network, account string, asset domain.Asset) {
	s.put(NewKey(network, account, asset), s.statusFor(true, true))
}

// MarkRemoved records an observed trustline removal optimistically.
func (s *Service) MarkRemoved(network domain.Network, account string, asset domain.Asset) {
	s.put(NewKey(network, account, asset), s.statusFor(false, true))
}

// ObserveSnapshot reconciles every cached status of the snapshot's account,
// plus the extra assets given, against the snapshot's balances.
// It returns how many optimistic statuses the ledger contradicted.
func (s *Service) ObserveSnapshot(snap domain.AccountSnapshot, extra ...domain.Asset) int {
	entries, err := s.store.ListTrustlines(snap.Network, snap.Address)
	if err != nil {
		slog.Warn("trustline: listing cached statuses failed", "account", snap.Address, "error", err)
	}

	keys := lo.Map(entries, func(e Entry, _ int) Key { return e.Key })
	for _, a := range extra {
		if !a.IsNative() {
			keys = append(keys, NewKey(snap.Network, snap.Address, a))
		}
	}
	previous := lo.SliceToMap(entries, func(e Entry) (Key, Status) { return e.Key, e.Status })

	contradicted := 0
	for _, key := range lo.Uniq(keys) {
		exists := snap.HasTrustline(key.Asset())
		if prev, ok := previous[key]; ok && prev.Optimistic {
			if was, _ := prev.Exists(); was != exists {
				contradicted++
				slog.Warn("trustline: optimistic status contradicted by ledger",
					"account", snap.Address, "asset", key.Asset().Canonical(), "believed", was, "observed", exists)
			}
		}
		s.put(key, s.statusFor(exists, false))
	}
	return contradicted
}

// Reconcile re-fetches every account holding optimistic statuses and
// replaces them with ledger observations. It returns the number of
// accounts reconciled and of statuses the ledger contradicted.
func (s *Service) Reconcile(ctx context.Context) (accounts, contradicted int, err error) {
	entries, err := s.store.ListOptimisticTrustlines()
	if err != nil {
		return 0, 0, fmt.Errorf("listing optimistic trustlines: %w", err)
	}

	type account struct {
		network domain.Network
		address string
	}
	groups := lo.GroupBy(entries, func(e Entry) account {
		return account{network: e.Key.Network, address: e.Key.Account}
	})

	for acc := range groups {
		if ctx.Err() != nil {
			return accounts, contradicted, ctx.Err()
		}
		snap, err := s.reader.GetAccountSnapshot(ctx, acc.address, acc.network)
		if err != nil {
			slog.Warn("trustline: reconcile fetch failed", "account", acc.address, "network", acc.network, "error", err)
			continue
		}
		contradicted += s.ObserveSnapshot(snap)
		accounts++
	}
	return accounts, contradicted, nil
}

// ForgetAccount drops every cached status of an account.
func (s *Service) ForgetAccount(network domain.Network, account string) error {
	return s.store.DeleteAccountTrustlines(network, account)
}

// BuildChangeTrustIntent creates a change-trust intent. An empty limit means
// full trust; "0" removes the trustline.
func BuildChangeTrustIntent(asset domain.Asset, limit string) (domain.ChangeTrust, error) {
	limit = strings.TrimSpace(limit)
	if limit == "" {
		limit = domain.MaxTrustLimit
	}
	intent := domain.ChangeTrust{Asset: asset, Limit: limit}
	if err := intent.Validate(); err != nil {
		return domain.ChangeTrust{}, err
	}
	return intent, nil
}

func (s *Service) statusFor(exists, optimistic bool) Status {
	state := StateAbsent
	if exists {
		state = StateExists
	}
	return Status{State: state, Optimistic: optimistic, UpdatedAt: s.now().UTC()}
}

func (s *Service) put(key Key, st Status) {
	if err := s.store.PutTrustline(key, st); err != nil {
		slog.Warn("trustline: failed to store status", "asset", key.Asset().Canonical(), "state", st.State, "error", err)
	}
}

func (s *Service) setInflight(key Key, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.inflight[key] = true
	} else {
		delete(s.inflight, key)
	}
}
