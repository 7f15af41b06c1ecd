package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"transitstore.org/internal/mutation"
	"transitstore.org/internal/notify"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
)

// Resolver routes identifiers to the provider owning their authority.
type Resolver struct {
	providers map[string]*Provider
	notifier  *notify.Notifier
}

func NewResolver(n *notify.Notifier, providers ...*Provider) *Resolver {
	r := &Resolver{providers: make(map[string]*Provider, len(providers)), notifier: n}
	for _, p := range providers {
		r.providers[p.Authority()] = p
	}
	return r
}

// Provider returns the provider for authority.
func (r *Resolver) Provider(authority string) (*Provider, error) {
	p, ok := r.providers[authority]
	if !ok {
		return nil, fmt.Errorf("%w: authority %q", resource.ErrUnknownResource, authority)
	}
	return p, nil
}

// Providers lists the providers sorted by authority.
func (r *Resolver) Providers() []*Provider {
	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Authority() < out[j].Authority() })
	return out
}

func (r *Resolver) Notifier() *notify.Notifier {
	return r.notifier
}

func (r *Resolver) Query(ctx context.Context, u resource.URI, q planner.Query) (*planner.ResultSet, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, u, q)
}

func (r *Resolver) Type(u resource.URI) (string, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return "", err
	}
	return p.Type(u)
}

func (r *Resolver) Insert(ctx context.Context, u resource.URI, v mutation.Values) (resource.URI, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return resource.URI{}, err
	}
	return p.Insert(ctx, u, v)
}

func (r *Resolver) BulkInsert(ctx context.Context, u resource.URI, rows []mutation.Values) (int, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return 0, err
	}
	return p.BulkInsert(ctx, u, rows)
}

func (r *Resolver) Replace(ctx context.Context, u resource.URI, rows []mutation.Values) (int, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return 0, err
	}
	return p.Replace(ctx, u, rows)
}

func (r *Resolver) Delete(ctx context.Context, u resource.URI) (int64, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return 0, err
	}
	return p.Delete(ctx, u)
}

func (r *Resolver) Update(ctx context.Context, u resource.URI, v mutation.Values) (int64, error) {
	p, err := r.Provider(u.Authority)
	if err != nil {
		return 0, err
	}
	return p.Update(ctx, u, v)
}

func (r *Resolver) Install(ctx context.Context, authority string, src io.Reader) error {
	p, err := r.Provider(authority)
	if err != nil {
		return err
	}
	return p.Install(ctx, src)
}

// Subscribe watches u for changes.
func (r *Resolver) Subscribe(u resource.URI, descendants bool) *notify.Subscription {
	return r.notifier.Subscribe(u, descendants)
}

// Close closes every provider's store.
func (r *Resolver) Close() error {
	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Authority(), err))
		}
	}
	return errors.Join(errs...)
}
