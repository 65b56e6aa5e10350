package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/trustline"
)

const (
	fileName = "kosh.db"

	trustlineBucket = "trustlines"
	walletBucket    = "wallets"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// Wallet is the cached address an identity resolved to.
type Wallet struct {
	Address   string    `json:"address"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoltStore persists client-side state: trustline statuses nested as
// trustlines/<network>/<account>/<[code, issuer]>, and wallet addresses
// keyed by identity. Every stored value is advisory.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the store under dir.
func Open(dir string) (*BoltStore, error) {
	if dir == "" {
		return nil, errors.New("state dir path can not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, fileName), 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain state lock, the store may be in use by another process")
		}
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{trustlineBucket, walletBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func assetKey(key trustline.Key) []byte {
	b, _ := json.Marshal([2]string{key.Code, key.Issuer})
	return b
}

func accountBucket(tx *bolt.Tx, network domain.Network, account string, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(trustlineBucket))
	if !create {
		nb := root.Bucket([]byte(network))
		if nb == nil {
			return nil, nil
		}
		return nb.Bucket([]byte(account)), nil
	}
	nb, err := root.CreateBucketIfNotExists([]byte(network))
	if err != nil {
		return nil, err
	}
	return nb.CreateBucketIfNotExists([]byte(account))
}

func (s *BoltStore) GetTrustline(key trustline.Key) (trustline.Status, bool, error) {
	var (
		st    trustline.Status
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, key.Network, key.Account, false)
		if b == nil {
			return nil
		}
		raw := b.Get(assetKey(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &st)
	})
	if err != nil {
		return trustline.Status{}, false, fmt.Errorf("reading trustline status: %w", err)
	}
	return st, found, nil
}

func (s *BoltStore) PutTrustline(key trustline.Key, st trustline.Status) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding trustline status: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := accountBucket(tx, key.Network, key.Account, true)
		if err != nil {
			return err
		}
		return b.Put(assetKey(key), raw)
	})
}

func (s *BoltStore) DeleteTrustline(key trustline.Key) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, key.Network, key.Account, false)
		if b == nil {
			return nil
		}
		return b.Delete(assetKey(key))
	})
}

func (s *BoltStore) ListTrustlines(network domain.Network, account string) ([]trustline.Entry, error) {
	var out []trustline.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b, _ := accountBucket(tx, network, account, false)
		if b == nil {
			return nil
		}
		return collect(b, network, account, func(trustline.Status) bool { return true }, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("listing trustlines: %w", err)
	}
	return out, nil
}

func (s *BoltStore) ListOptimisticTrustlines() ([]trustline.Entry, error) {
	var out []trustline.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(trustlineBucket))
		return forEachBucket(root, func(network []byte, nb *bolt.Bucket) error {
			return forEachBucket(nb, func(account []byte, ab *bolt.Bucket) error {
				return collect(ab, domain.Network(network), string(account),
					func(st trustline.Status) bool { return st.Optimistic }, &out)
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing optimistic trustlines: %w", err)
	}
	return out, nil
}

func (s *BoltStore) DeleteAccountTrustlines(network domain.Network, account string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		nb := tx.Bucket([]byte(trustlineBucket)).Bucket([]byte(network))
		if nb == nil || nb.Bucket([]byte(account)) == nil {
			return nil
		}
		return nb.DeleteBucket([]byte(account))
	})
}

// forEachBucket visits the nested buckets of b; plain keys have nil values.
func forEachBucket(b *bolt.Bucket, fn func(name []byte, child *bolt.Bucket) error) error {
	return b.ForEach(func(k, v []byte) error {
		if v != nil {
			return nil
		}
		return fn(k, b.Bucket(k))
	})
}

func collect(b *bolt.Bucket, network domain.Network, account string, keep func(trustline.Status) bool, out *[]trustline.Entry) error {
	return b.ForEach(func(k, v []byte) error {
		var asset [2]string
		if err := json.Unmarshal(k, &asset); err != nil {
			return fmt.Errorf("decoding key %q: %w", k, err)
		}
		var st trustline.Status
		if err := json.Unmarshal(v, &st); err != nil {
			return fmt.Errorf("decoding status for %q: %w", k, err)
		}
		if keep(st) {
			*out = append(*out, trustline.Entry{
				Key:    trustline.Key{Network: network, Account: account, Code: asset[0], Issuer: asset[1]},
				Status: st,
			})
		}
		return nil
	})
}

// GetWallet returns the cached wallet of identity or ErrNotFound.
func (s *BoltStore) GetWallet(identity string) (Wallet, error) {
	var w Wallet
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(walletBucket)).Get([]byte(identity))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &w)
	})
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// PutWallet caches the wallet of identity.
func (s *BoltStore) PutWallet(identity string, w Wallet) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encoding wallet: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(walletBucket)).Put([]byte(identity), raw)
	})
}

// DeleteWallet forgets the cached wallet of identity.
func (s *BoltStore) DeleteWallet(identity string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(walletBucket)).Delete([]byte(identity))
	})
}
