package kit

import "context"

type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	sessionIDKey
)

func withValue(ctx context.Context, k ctxKey, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// WithTransport records which transport a command arrived on: "http",
// "mcp" or "inproc".
func WithTransport(ctx context.Context, t string) context.Context {
	return withValue(ctx, transportKey, t)
}

// GetTransport defaults to "inproc" for direct Go calls.
func GetTransport(ctx context.Context) string {
	if v := value(ctx, transportKey); v != "" {
		return v
	}
	return "inproc"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string { return value(ctx, requestIDKey) }

// WithSessionID tags the context with the domveil session handling it.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

func GetSessionID(ctx context.Context) string { return value(ctx, sessionIDKey) }
