package trustline

import (
	"fmt"
	"sync"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
)

// State is the gatekeeper's belief about one (account, asset) trustline.
type State string

const (
	StateUnknown  State = "UNKNOWN"
	StateChecking State = "CHECKING"
	StateExists   State = "EXISTS"
	StateAbsent   State = "ABSENT"
)

// Key identifies a cached status. Each field is compared separately, so
// separators inside codes cannot collide.
type Key struct {
	Network domain.Network `json:"network"`
	Account string         `json:"account"`
	Code    string         `json:"code"`
	Issuer  string         `json:"issuer"`
}

// NewKey builds the cache key for an account's trustline to asset.
func NewKey(network domain.Network, account string, asset domain.Asset) Key {
	return Key{Network: network, Account: account, Code: asset.Code, Issuer: asset.Issuer}
}

// Asset returns the asset the key refers to.
func (k Key) Asset() domain.Asset {
	return domain.NewAsset(k.Code, k.Issuer)
}

func (k Key) flightKey() string {
	return fmt.Sprintf("%q/%q/%q/%q", k.Network, k.Account, k.Code, k.Issuer)
}

// Status is the cached view of a trustline. Optimistic marks a status set
// from an observed change-trust success that no account fetch has confirmed yet.
type Status struct {
	State      State     `json:"state"`
	Optimistic bool      `json:"optimistic,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Checking reports whether a check is in flight.
func (s Status) Checking() bool {
	return s.State == StateChecking
}

// Exists returns the tri-state existence: ok is false while unknown.
func (s Status) Exists() (exists, ok bool) {
	switch s.State {
	case StateExists:
		return true, true
	case StateAbsent:
		return false, true
	}
	return false, false
}

// Entry is a stored key with its status.
type Entry struct {
	Key    Key    `json:"key"`
	Status Status `json:"status"`
}

// StatusStore persists terminal statuses. A missing key means UNKNOWN.
type StatusStore interface {
	GetTrustline(key Key) (Status, bool, error)
	PutTrustline(key Key, st Status) error
	DeleteTrustline(key Key) error
	ListTrustlines(network domain.Network, account string) ([]Entry, error)
	ListOptimisticTrustlines() ([]Entry, error)
	DeleteAccountTrustlines(network domain.Network, account string) error
}

// MemoryStore is a StatusStore that lives for the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Status
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]Status)}
}

func (m *MemoryStore) GetTrustline(key Key) (Status, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.entries[key]
	return st, ok, nil
}

func (m *MemoryStore) PutTrustline(key Key, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = st
	return nil
}

func (m *MemoryStore) DeleteTrustline(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) ListTrustlines(network domain.Network, account string) ([]Entry, error) {
	return m.list(func(k Key, _ Status) bool {
		return k.Network == network && k.Account == account
	}), nil
}

func (m *MemoryStore) ListOptimisticTrustlines() ([]Entry, error) {
	return m.list(func(_ Key, st Status) bool { return st.Optimistic }), nil
}

func (m *MemoryStore) DeleteAccountTrustlines(network domain.Network, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if k.Network == network && k.Account == account {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *MemoryStore) list(keep func(Key, Status) bool) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, st := range m.entries {
		if keep(k, st) {
			out = append(out, Entry{Key: k, Status: st})
		}
	}
	return out
}
