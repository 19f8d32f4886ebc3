package idp

import "context"

type contextKey int

const (
	contextKeyClientIP contextKey = iota
	contextKeyUserAgent
)

// WithClientIP attaches the caller's IP to the context for event records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyClientIP, ip)
}

// WithUserAgent attaches the caller's user agent to the context for event records.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(contextKeyClientIP).(string)
	return v
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(contextKeyUserAgent).(string)
	return v
}
