package llm

import "context"

// CallInfo labels a model call with the pipeline run and stage issuing it.
type CallInfo struct {
	Pipeline string
	Stage    string
	RunID    string
}

type callInfoKey struct{}

// WithCallInfo attaches info to ctx for middleware that labels requests.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom returns the CallInfo attached to ctx, or the zero value.
func CallInfoFrom(ctx context.Context) CallInfo {
	if info, ok := ctx.Value(callInfoKey{}).(CallInfo); ok {
		return info
	}
	return CallInfo{}
}
