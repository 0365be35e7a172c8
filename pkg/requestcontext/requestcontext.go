// Package requestcontext carries per-request values (request id, caller
// identity, client metadata and the request's "now") through context.Context.
// Handlers read from here; services receive identity as explicit arguments.
package requestcontext

import (
	"context"
	"time"

	id "rekamed/pkg/domain"
)

type (
	requestIDKey struct{}
	principalKey struct{}
	clientKey    struct{}
	timeKey      struct{}
)

// Principal is the authenticated caller as asserted by the bearer token.
type Principal struct {
	UserID id.UserID
	Name   string
	Role   id.Role
}

type clientMetadata struct {
	ip        string
	userAgent string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns the caller and whether auth middleware populated it.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && !p.UserID.IsNil()
}

func UserID(ctx context.Context) id.UserID {
	p, _ := GetPrincipal(ctx)
	return p.UserID
}

func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientMetadata{ip: ip, userAgent: userAgent})
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientKey{}).(clientMetadata)
	return v.ip
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(clientKey{}).(clientMetadata)
	return v.userAgent
}

// WithTime pins the request's notion of "now". Tests and workers use it to
// make expiry checks deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now returns the pinned request time, or time.Now when none is set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
