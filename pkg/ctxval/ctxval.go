// Package ctxval lets inner handlers hand values back to outer middleware
// through a mutable bag stored in the request context.
package ctxval

import (
	"context"
	"sync"
)

type bagKey struct{}

type bag struct {
	mu     sync.RWMutex
	values map[any]any
}

// Wrap attaches a bag to ctx. Wrapping twice keeps the first bag.
func Wrap(ctx context.Context) context.Context {
	if _, ok := from(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, bagKey{}, &bag{values: make(map[any]any)})
}

// Set stores v under k. It is a no-op on an unwrapped context.
func Set[K comparable, V any](ctx context.Context, k K, v V) {
	b, ok := from(ctx)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[k] = v
}

func Get[K comparable, V any](ctx context.Context, k K) (V, bool) {
	var zero V
	b, ok := from(ctx)
	if !ok {
		return zero, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[k].(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func from(ctx context.Context) (*bag, bool) {
	b, ok := ctx.Value(bagKey{}).(*bag)
	return b, ok
}
