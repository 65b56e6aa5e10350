package pipeline

import (
	"fmt"
	"sync"

	"github.com/mtlprog/kosh/internal/domain"
)

type accountKey struct {
	network domain.Network
	address string
}

// accountGuard serializes runs per account and remembers the highest
// sequence number each account has spent in this process.
type accountGuard struct {
	mu       sync.Mutex
	running  map[accountKey]bool
	consumed map[accountKey]int64
}

func newAccountGuard() *accountGuard {
	return &accountGuard{
		running:  make(map[accountKey]bool),
		consumed: make(map[accountKey]int64),
	}
}

func (g *accountGuard) acquire(network domain.Network, address string) (func(), bool) {
	key := accountKey{network: network, address: address}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running[key] {
		return nil, false
	}
	g.running[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, true
}

func (g *accountGuard) active(network domain.Network, address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running[accountKey{network: network, address: address}]
}

// checkFresh rejects a snapshot whose next sequence is not above the last one spent.
func (g *accountGuard) checkFresh(network domain.Network, snap domain.AccountSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.consumed[accountKey{network: network, address: snap.Address}]
	if ok && snap.NextSequence() <= last {
		return fmt.Errorf("%w: sequence %d already used", domain.ErrStaleSnapshot, snap.NextSequence())
	}
	return nil
}

func (g *accountGuard) consume(network domain.Network, address string, sequence int64) {
	key := accountKey{network: network, address: address}
	g.mu.Lock()
	defer g.mu.Unlock()
	if sequence > g.consumed[key] {
		g.consumed[key] = sequence
	}
}
