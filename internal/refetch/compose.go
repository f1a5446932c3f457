package refetch

import "refetch/internal/compose"

// WithProvider registers Provider with the compose package, so it can be
// stacked with other providers:
//
//	ctx, release, err := compose.Mount(ctx, refetch.WithProvider(refetch.Options{Interval: time.Minute}))
var WithProvider = compose.WithProps(func(opts Options) compose.Mountable {
	return NewProvider(opts)
})
