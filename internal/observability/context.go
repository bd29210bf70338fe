package observability

import "context"

type threadKey struct{}

// WithThread tags ctx with the session thread id so downstream logging can attribute events.
func WithThread(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadKey{}, threadID)
}

func ThreadFrom(ctx context.Context) string {
	if id, ok := ctx.Value(threadKey{}).(string); ok {
		return id
	}
	return ""
}
