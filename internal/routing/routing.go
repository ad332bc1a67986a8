// Package routing maps worker types to the queue that processes them.
package routing

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

const DefaultQueue = "default"

// Router resolves explicit routes first and spreads the remaining worker
// types over the known queues with rendezvous hashing, so adding a queue only
// moves the workers that land on it.
type Router struct {
	routes map[string]string
	hash   *rendezvous.Rendezvous
}

func New(queues []string, routes map[string]string) *Router {
	rt := &Router{routes: routes}
	if len(queues) > 0 {
		rt.hash = rendezvous.New(queues, xxhash.Sum64String)
	}
	return rt
}

func (rt *Router) Route(worker string) string {
	if q, ok := rt.routes[worker]; ok && q != "" {
		return q
	}
	if rt.hash == nil {
		return DefaultQueue
	}
	return rt.hash.Lookup(worker)
}
