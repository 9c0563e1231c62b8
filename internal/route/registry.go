// Package route resolves which bridging protocol handles a transfer.
// The route table is loaded once at process start and read-only afterwards;
// concurrent resolution requires no locking.
package route

import (
	"fmt"

	"github.com/bridgeflow/transfer_engine/internal/transfer"
)

// NotFoundError reports that no configured route covers the requested path.
// It is terminal and non-retryable, surfaced before any submission.
type NotFoundError struct {
	From  transfer.CanonicalChainID
	To    transfer.CanonicalChainID
	Token string
}

// Error implements error.
func (e NotFoundError) Error() string {
	return fmt.Sprintf("no route for %s -> %s (token %s)", e.From, e.To, e.Token)
}

// Route maps a chain pair and token set to the protocol responsible for
// moving those tokens along that path.
type Route struct {
	From     transfer.CanonicalChainID
	To       transfer.CanonicalChainID
	Protocol transfer.ProtocolID
	Tokens   []string
}

// Registry is the ordered route table. Declaration order is evaluation
// order: the first matching route wins.
type Registry struct {
	routes []Route
}

// NewRegistry builds a Registry from the declared routes.
func NewRegistry(routes []Route) *Registry {
	return &Registry{routes: append([]Route(nil), routes...)}
}

// Resolve returns the protocol of the first route matching the chain pair
// whose token set contains token.
func (r *Registry) Resolve(from, to transfer.CanonicalChainID, token string) (transfer.ProtocolID, error) {
	for _, rt := range r.routes {
		if rt.From != from || rt.To != to {
			continue
		}
		for _, t := range rt.Tokens {
			if t == token {
				return rt.Protocol, nil
			}
		}
	}
	return 0, NotFoundError{From: from, To: to, Token: token}
}

// Routes returns a copy of the declared route table.
func (r *Registry) Routes() []Route {
	return append([]Route(nil), r.routes...)
}
