package refetch

import "context"

type ctxKey struct{}

// Use returns the Controller of the nearest enclosing mounted Provider, or
// nil when there is none. A nil Controller is safe to call.
func Use(ctx context.Context) *Controller {
	c, _ := FromContext(ctx)
	return c
}

// FromContext is Use with a presence flag. A Controller whose provider has
// unmounted is reported as absent.
func FromContext(ctx context.Context) (*Controller, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(ctxKey{}).(*Controller)
	if !ok || c == nil || c.Closed() {
		return nil, false
	}
	return c, true
}

// Subscribe registers fn on Use(ctx) for as long as ctx lives. The returned
// disposer releases it early. Outside a provider it is a no-op.
func Subscribe(ctx context.Context, fn func()) (unsubscribe func()) {
	c := Use(ctx)
	if c == nil || fn == nil {
		return func() {}
	}
	unsub := c.Subscribe(fn)
	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}
}

// Trigger requests a refetch from the nearest provider, if any.
func Trigger(ctx context.Context) {
	Use(ctx).Refetch()
}
