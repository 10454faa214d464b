package pos

import (
	"fmt"
	"sort"
	"strings"
)

// Registry selects the adapter for a location by its vendor tag.
type Registry struct {
	clients map[string]Client
}

// NewRegistry indexes the given clients by vendor.
func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		if c == nil {
			continue
		}
		r.clients[strings.ToLower(c.Vendor())] = c
	}
	return r
}

// NewDefaultRegistry registers every built-in vendor adapter.
func NewDefaultRegistry(opts Options) *Registry {
	return NewRegistry(NewBiotrackClient(opts), NewMJFreewayClient(opts))
}

// Resolve returns the adapter registered for vendor.
func (r *Registry) Resolve(vendor string) (Client, error) {
	if r != nil {
		if c, ok := r.clients[strings.ToLower(strings.TrimSpace(vendor))]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
}

// Vendors lists registered vendor tags in sorted order.
func (r *Registry) Vendors() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.clients))
	for v := range r.clients {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
