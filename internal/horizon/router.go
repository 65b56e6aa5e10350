package horizon

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/mtlprog/kosh/internal/domain"
)

// Router hands out the Horizon client for a network.
type Router struct {
	clients map[domain.Network]*Client
}

// NewRouter creates a router over per-network clients.
func NewRouter(clients map[domain.Network]*Client) *Router {
	return &Router{clients: clients}
}

// Client returns the Horizon client for the network.
func (r *Router) Client(n domain.Network) (*Client, error) {
	c, ok := r.clients[n]
	if !ok || c == nil {
		return nil, fmt.Errorf("no horizon configured for network %q", n)
	}
	return c, nil
}

// Networks lists the networks that have a client.
func (r *Router) Networks() []domain.Network {
	out := lo.Keys(r.clients)
	slices.Sort(out)
	return out
}
