package shiftauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Service uses it
// for per-IP rate limiting, audit events and session metadata when the
// operation has no explicit DeviceMeta.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// ClientIPFromContext returns the IP set by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// UserAgentFromContext returns the User-Agent set by WithUserAgent.
func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// deviceFromContext fills empty fields of meta from ctx.
func deviceFromContext(ctx context.Context, meta DeviceMeta) DeviceMeta {
	if meta.IP == "" {
		meta.IP = ClientIPFromContext(ctx)
	}
	if meta.UserAgent == "" {
		meta.UserAgent = UserAgentFromContext(ctx)
	}
	return meta
}
