package requestctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
	userIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), requestIDKey, requestID)
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithSessionID attaches the checkout session ID to the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), sessionIDKey, sessionID)
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionID(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey)
}

// WithUserID attaches the authenticated user ID to the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), userIDKey, userID)
	}
	return context.WithValue(ctx, userIDKey, userID)
}

func UserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
