// Package refetch lets code running under a mounted Provider trigger or
// subscribe to a shared "refetch" signal, optionally fired on a timer.
//
// Scope is carried by context.Context: Provider.Mount derives a context that
// holds the provider's Controller, and Use(ctx) returns the nearest enclosing
// one (or nil outside any provider). Callers decide what a refetch means.
//
// Contract:
//   - Refetch delivers synchronously, in registration order.
//   - A panicking listener is recovered and logged; delivery continues.
//   - Disposers and timer cancels are idempotent.
//   - All methods on a nil *Controller are no-ops.
package refetch
