package toolexecutor

import "context"

type callOptionsKey struct{}

func withCallOptions(ctx context.Context, opts *CallOptions) context.Context {
	if opts == nil {
		return ctx
	}
	return context.WithValue(ctx, callOptionsKey{}, opts)
}

// CallOptionsFromContext returns the options of the call a handler is serving,
// or nil outside Registry.Execute.
func CallOptionsFromContext(ctx context.Context) *CallOptions {
	opts, _ := ctx.Value(callOptionsKey{}).(*CallOptions)
	return opts
}
