package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/signer"
	"github.com/mtlprog/kosh/internal/store"
)

// WalletCache persists the address each identity resolved to.
type WalletCache interface {
	GetWallet(identity string) (store.Wallet, error)
	PutWallet(identity string, w store.Wallet) error
	DeleteWallet(identity string) error
}

// TrustlineCache drops an account's cached trustline statuses.
type TrustlineCache interface {
	ForgetAccount(network domain.Network, account string) error
}

// Session is the explicit per-identity context: who is connected, on which
// network, through which signer. It starts at login and ends with Reset.
type Session struct {
	identity   string
	network    domain.Network
	signer     *signer.Client
	wallets    WalletCache
	trustlines TrustlineCache
	now        func() time.Time

	mu      sync.Mutex
	address string
}

// New creates a session for identity. wallets and trustlines may be nil.
func New(identity string, network domain.Network, base *signer.Client, wallets WalletCache, trustlines TrustlineCache) *Session {
	return &Session{
		identity:   identity,
		network:    network,
		signer:     base.WithIdentity(identity),
		wallets:    wallets,
		trustlines: trustlines,
		now:        time.Now,
	}
}

func (s *Session) Identity() string        { return s.identity }
func (s *Session) Network() domain.Network { return s.network }

// Signer returns the signer client bound to the session's identity.
func (s *Session) Signer() *signer.Client { return s.signer }

// Address returns the wallet address of the identity. It is resolved once
// through the signer and cached; a cached value is advisory and dropped by Reset.
func (s *Session) Address(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.address != "" {
		return s.address, nil
	}

	if s.wallets != nil {
		w, err := s.wallets.GetWallet(s.identity)
		switch {
		case err == nil && domain.ValidateAccountAddress(w.Address) == nil:
			s.address = w.Address
			return s.address, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			slog.Warn("session: wallet cache read failed", "identity", s.identity, "error", err)
		}
	}

	address, err := s.signer.PublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving wallet address: %w", err)
	}
	s.address = address

	if s.wallets != nil {
		if err := s.wallets.PutWallet(s.identity, store.Wallet{Address: address, UpdatedAt: s.now().UTC()}); err != nil {
			slog.Warn("session: wallet cache write failed", "identity", s.identity, "error", err)
		}
	}
	slog.Info("session: wallet resolved", "identity", s.identity, "address", address)
	return address, nil
}

// Reset ends the session: the cached address and the account's cached
// trustline statuses are cleared.
func (s *Session) Reset() error {
	s.mu.Lock()
	address := s.address
	s.address = ""
	s.mu.Unlock()

	var errs []error
	if s.wallets != nil {
		if address == "" {
			if w, err := s.wallets.GetWallet(s.identity); err == nil {
				address = w.Address
			}
		}
		if err := s.wallets.DeleteWallet(s.identity); err != nil {
			errs = append(errs, fmt.Errorf("clearing wallet cache: %w", err))
		}
	}
	if s.trustlines != nil && address != "" {
		if err := s.trustlines.ForgetAccount(s.network, address); err != nil {
			errs = append(errs, fmt.Errorf("clearing trustline cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Manager hands out one Session per identity.
type Manager struct {
	network    domain.Network
	signer     *signer.Client
	wallets    WalletCache
	trustlines TrustlineCache

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(network domain.Network, base *signer.Client, wallets WalletCache, trustlines TrustlineCache) *Manager {
	return &Manager{
		network:    network,
		signer:     base,
		wallets:    wallets,
		trustlines: trustlines,
		sessions:   make(map[string]*Session),
	}
}

// Get returns the session of identity, starting one if needed.
func (m *Manager) Get(identity string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[identity]; ok {
		return s
	}
	s := New(identity, m.network, m.signer, m.wallets, m.trustlines)
	m.sessions[identity] = s
	return s
}

// Logout resets and forgets the session of identity.
func (m *Manager) Logout(identity string) error {
	m.mu.Lock()
	s, ok := m.sessions[identity]
	delete(m.sessions, identity)
	m.mu.Unlock()

	if !ok {
		s = New(identity, m.network, m.signer, m.wallets, m.trustlines)
	}
	return s.Reset()
}
