package authkit

import "context"

type contextKey int

const (
	clientIPKey contextKey = iota
	authResultKey
)

// WithClientIP attaches the caller's IP to the context. Engine operations
// use it for audit records and, when enabled, per-IP login throttling.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// WithAuthResult attaches a verified identity to the context. Used by the
// middleware package after a successful Authenticate.
func WithAuthResult(ctx context.Context, res *AuthResult) context.Context {
	return context.WithValue(ctx, authResultKey, res)
}

// AuthResultFromContext returns the identity placed by [WithAuthResult],
// or nil when the request was not authenticated.
func AuthResultFromContext(ctx context.Context) *AuthResult {
	res, _ := ctx.Value(authResultKey).(*AuthResult)
	return res
}
