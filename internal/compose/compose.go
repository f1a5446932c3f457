// Package compose stacks scope providers declaratively.
//
// A provider is anything that can be mounted under a context and later
// unmounted. WithProps turns a provider constructor into a Composable that
// Mount can thread together with other cross-cutting providers.
package compose

import (
	"context"
	"fmt"
	"sync"
)

// Mountable is a scope provider.
type Mountable interface {
	Mount(parent context.Context) (context.Context, error)
	Unmount()
}

// Composable mounts one provider under ctx and returns the derived context
// together with its release func.
type Composable func(ctx context.Context) (context.Context, func(), error)

// WithProps binds a provider constructor to its props.
func WithProps[P any](factory func(P) Mountable) func(P) Composable {
	return func(props P) Composable {
		return func(ctx context.Context) (context.Context, func(), error) {
			m := factory(props)
			if m == nil {
				return ctx, func() {}, nil
			}
			child, err := m.Mount(ctx)
			if err != nil {
				return nil, nil, err
			}
			return child, m.Unmount, nil
		}
	}
}

// Mount mounts each Composable under the context produced by the previous
// one. If any fails, those already mounted are released in reverse order.
// The returned release func unmounts everything in reverse order, once.
func Mount(ctx context.Context, units ...Composable) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	releases := make([]func(), 0, len(units))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for i, u := range units {
		if u == nil {
			continue
		}
		child, release, err := u(ctx)
		if err != nil {
			releaseAll()
			return nil, nil, fmt.Errorf("compose: mount unit %d: %w", i, err)
		}
		if release != nil {
			releases = append(releases, release)
		}
		if child != nil {
			ctx = child
		}
	}

	var once sync.Once
	return ctx, func() { once.Do(releaseAll) }, nil
}
