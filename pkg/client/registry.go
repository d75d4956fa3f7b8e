package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry holds at most one Client per domain. It is owned by the
// composition root; there is no package-level instance.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register adds c under its domain.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.Domain()]; ok {
		return fmt.Errorf("%w: %q", ErrDomainTaken, c.Domain())
	}
	r.clients[c.Domain()] = c
	return nil
}

func (r *Registry) Get(domain string) (*Client, bool) {
	if domain == "" {
		domain = DefaultDomain
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[domain]
	return c, ok
}

// GetOrCreate returns the client of domain, building and registering it with
// factory when absent. The factory runs under the registry lock and must not
// call back into the registry.
func (r *Registry) GetOrCreate(domain string, factory func(domain string) (*Client, error)) (*Client, error) {
	if domain == "" {
		domain = DefaultDomain
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[domain]; ok {
		return c, nil
	}
	c, err := factory(domain)
	if err != nil {
		return nil, err
	}
	r.clients[domain] = c
	return c, nil
}

// Remove unregisters the client of domain and shuts it down.
func (r *Registry) Remove(ctx context.Context, domain string) error {
	if domain == "" {
		domain = DefaultDomain
	}
	r.mu.Lock()
	c, ok := r.clients[domain]
	delete(r.clients, domain)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, domain)
	}
	return c.ShutDown(ctx)
}

// Domains lists registered domains in sorted order.
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.clients))
}

// Close shuts every client down and empties the registry.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.ShutDown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
